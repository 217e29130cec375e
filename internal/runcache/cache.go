package runcache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
)

const (
	// DefaultTTL applies when a write passes no per-call override.
	DefaultTTL = 10 * time.Minute

	// DefaultSweepInterval is how often the background sweep evicts
	// expired entries.
	DefaultSweepInterval = time.Minute
)

// Namespace identifies one of the three independent cache maps.
type Namespace string

const (
	NamespaceOutput     Namespace = "output"
	NamespaceToolResult Namespace = "tool_result"
	NamespaceContext    Namespace = "context"
)

type entry struct {
	value          interface{}
	createdAt      time.Time
	expiresAt      time.Time
	accessCount    int
	lastAccessedAt time.Time
}

// NamespaceStats reports one namespace's counters.
type NamespaceStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats reports per-namespace counters plus the total eviction count.
type Stats struct {
	Output     NamespaceStats `json:"output"`
	ToolResult NamespaceStats `json:"tool_result"`
	Context    NamespaceStats `json:"context"`
	Evicted    int64          `json:"evicted"`
}

// Cache memoizes agent outputs, tool results, and context strings in three
// independently keyed TTL maps. Reads lazily evict expired entries; a
// background sweep evicts proactively. Safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	outputs     map[string]*entry
	toolResults map[string]*entry
	contexts    map[string]*entry

	hits    map[Namespace]int64
	misses  map[Namespace]int64
	evicted int64

	defaultTTL    time.Duration
	sweepInterval time.Duration

	bus    *events.EventBus
	logger *logging.Logger
	now    func() time.Time

	stopSweep chan struct{}
	closeOnce sync.Once
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithDefaultTTL overrides the default entry lifetime.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithSweepInterval overrides the background sweep cadence. Zero disables
// the sweeper entirely.
func WithSweepInterval(d time.Duration) CacheOption {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithCacheClock overrides the time source, for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// New creates a run cache and starts its sweep goroutine.
func New(bus *events.EventBus, logger *logging.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Cache{
		outputs:       make(map[string]*entry),
		toolResults:   make(map[string]*entry),
		contexts:      make(map[string]*entry),
		hits:          make(map[Namespace]int64),
		misses:        make(map[Namespace]int64),
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		bus:           bus,
		logger:        logger,
		now:           time.Now,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the background sweep. Idempotent.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stopSweep) })
}

// ToolKey builds a canonical key for a tool invocation. Parameters are
// JSON-serialized; map keys marshal in sorted order, so semantically
// identical parameter sets collide regardless of property order.
func ToolKey(toolID string, params map[string]interface{}) string {
	if params == nil {
		return toolID + ":"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", toolID, params)
	}
	return toolID + ":" + string(raw)
}

// CacheOutput stores an agent's output. A zero ttl uses the default;
// writes always overwrite.
func (c *Cache) CacheOutput(agentID string, value interface{}, ttl time.Duration) {
	c.put(c.outputs, agentID, value, ttl)
}

// GetOutput returns a cached output, or nil and false on miss or expiry.
func (c *Cache) GetOutput(agentID string) (interface{}, bool) {
	return c.get(c.outputs, NamespaceOutput, agentID)
}

// InvalidateOutput removes one agent's cached output.
func (c *Cache) InvalidateOutput(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outputs, agentID)
}

// CacheToolResult stores a tool invocation result under its canonical key.
func (c *Cache) CacheToolResult(toolID string, params map[string]interface{}, value interface{}, ttl time.Duration) {
	c.put(c.toolResults, ToolKey(toolID, params), value, ttl)
}

// GetToolResult returns a cached tool result, insensitive to parameter
// key ordering.
func (c *Cache) GetToolResult(toolID string, params map[string]interface{}) (interface{}, bool) {
	return c.get(c.toolResults, NamespaceToolResult, ToolKey(toolID, params))
}

// InvalidateToolResult removes one tool invocation's entry. With nil
// params it removes every entry under the tool id prefix.
func (c *Cache) InvalidateToolResult(toolID string, params map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if params != nil {
		delete(c.toolResults, ToolKey(toolID, params))
		return
	}
	prefix := toolID + ":"
	for k := range c.toolResults {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.toolResults, k)
		}
	}
}

// CacheContext stores an assembled context string for a task.
func (c *Cache) CacheContext(taskID string, value interface{}, ttl time.Duration) {
	c.put(c.contexts, taskID, value, ttl)
}

// GetContext returns a cached context string for a task.
func (c *Cache) GetContext(taskID string) (interface{}, bool) {
	return c.get(c.contexts, NamespaceContext, taskID)
}

// InvalidateContext removes one task's cached context.
func (c *Cache) InvalidateContext(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contexts, taskID)
}

// Producer computes a value on a cache miss. Its error propagates to the
// caller unmodified and nothing is cached.
type Producer func() (interface{}, error)

// GetOrComputeOutput returns the cached output when present, otherwise
// invokes the producer, caches the result, and reports fromCache=false.
// Concurrent identical misses are not coalesced; each caller runs its own
// producer.
func (c *Cache) GetOrComputeOutput(agentID string, ttl time.Duration, produce Producer) (interface{}, bool, error) {
	if v, ok := c.GetOutput(agentID); ok {
		return v, true, nil
	}
	v, err := produce()
	if err != nil {
		return nil, false, err
	}
	c.CacheOutput(agentID, v, ttl)
	return v, false, nil
}

// GetOrComputeToolResult is GetOrComputeOutput for the tool-result
// namespace.
func (c *Cache) GetOrComputeToolResult(toolID string, params map[string]interface{}, ttl time.Duration, produce Producer) (interface{}, bool, error) {
	if v, ok := c.GetToolResult(toolID, params); ok {
		return v, true, nil
	}
	v, err := produce()
	if err != nil {
		return nil, false, err
	}
	c.CacheToolResult(toolID, params, v, ttl)
	return v, false, nil
}

func (c *Cache) put(m map[string]*entry, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	m[key] = &entry{
		value:          value,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
}

func (c *Cache) get(m map[string]*entry, ns Namespace, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := m[key]
	if !ok {
		c.misses[ns]++
		return nil, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(m, key)
		c.evicted++
		c.misses[ns]++
		return nil, false
	}
	e.accessCount++
	e.lastAccessedAt = now
	c.hits[ns]++
	return e.value, true
}

// Sweep evicts expired entries across all three namespaces and returns
// how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	evicted := 0
	for _, m := range []map[string]*entry{c.outputs, c.toolResults, c.contexts} {
		for k, e := range m {
			if now.After(e.expiresAt) {
				delete(m, k)
				evicted++
			}
		}
	}
	c.evicted += int64(evicted)
	c.mu.Unlock()

	if evicted > 0 {
		if c.bus != nil {
			c.bus.Publish(events.NewCacheSweptEvent(evicted))
		}
		c.logger.Debug("cache sweep", "evicted", evicted)
	}
	return evicted
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopSweep:
			return
		}
	}
}

// GetStats reports size, hit, miss, and hit-rate per namespace plus the
// total eviction count.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	build := func(ns Namespace, m map[string]*entry) NamespaceStats {
		s := NamespaceStats{
			Size:   len(m),
			Hits:   c.hits[ns],
			Misses: c.misses[ns],
		}
		if total := s.Hits + s.Misses; total > 0 {
			s.HitRate = float64(s.Hits) / float64(total)
		}
		return s
	}
	return Stats{
		Output:     build(NamespaceOutput, c.outputs),
		ToolResult: build(NamespaceToolResult, c.toolResults),
		Context:    build(NamespaceContext, c.contexts),
		Evicted:    c.evicted,
	}
}
