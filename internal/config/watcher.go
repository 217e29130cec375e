package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/askorupski/agentflow/internal/logging"
)

// debounceWindow coalesces the write bursts editors produce when saving.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the config file on change and hands the validated result
// to a callback. Invalid edits are logged and skipped; the previous
// configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *logging.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher for one config file. The callback runs on
// the watch goroutine; keep it short.
func NewWatcher(path string, logger *logging.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files on save and
	// a file watch dies with the old inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		stop:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops watching. Idempotent.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.stop)
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stop:
		return
	default:
	}

	cfg, err := NewLoader().WithConfigFile(w.path).Load()
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := NewValidator().Validate(cfg); err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
