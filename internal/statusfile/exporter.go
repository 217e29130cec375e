package statusfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/askorupski/agentflow/internal/escalate"
	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/logging"
	"github.com/askorupski/agentflow/internal/recovery"
	"github.com/askorupski/agentflow/internal/runcache"
	"github.com/askorupski/agentflow/internal/thinking"
)

// Status is the JSON document written to disk. The CLI status command
// reads it instead of calling the HTTP API, so a crashed server still
// leaves the last snapshot inspectable.
type Status struct {
	UpdatedAt  time.Time      `json:"updated_at"`
	Lanes      lane.Stats     `json:"lanes"`
	Recovery   recovery.Stats `json:"recovery"`
	Thinking   thinking.Stats `json:"thinking"`
	Escalation escalate.Stats `json:"escalation"`
	Cache      runcache.Stats `json:"cache"`
}

// CollectFunc assembles a status snapshot on demand.
type CollectFunc func() Status

// Exporter periodically writes the control-plane status to a JSON file
// using an atomic rename, so readers never see a torn write.
type Exporter struct {
	path     string
	interval time.Duration
	collect  CollectFunc
	logger   *logging.Logger

	stop chan struct{}
	once sync.Once
}

// NewExporter creates an exporter. Call Run to start the write loop.
func NewExporter(path string, interval time.Duration, collect CollectFunc, logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Exporter{
		path:     path,
		interval: interval,
		collect:  collect,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Run writes immediately, then on every tick until Close.
func (e *Exporter) Run() {
	if err := e.WriteOnce(); err != nil {
		e.logger.Warn("status file write failed", "path", e.path, "error", err)
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.WriteOnce(); err != nil {
				e.logger.Warn("status file write failed", "path", e.path, "error", err)
			}
		case <-e.stop:
			return
		}
	}
}

// WriteOnce collects and writes a single snapshot.
func (e *Exporter) WriteOnce() error {
	st := e.collect()
	st.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o750); err != nil {
		return err
	}
	return atomicWriteFile(e.path, data, 0o644)
}

// Close stops the write loop. Idempotent.
func (e *Exporter) Close() {
	e.once.Do(func() { close(e.stop) })
}

// Read loads a previously written status file.
func Read(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing status file: %w", err)
	}
	return &st, nil
}
