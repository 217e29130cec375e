package runcache

import (
	"errors"
	"testing"
	"time"
)

func newTestCache() *Cache {
	// Sweeper disabled; tests drive eviction explicitly.
	return New(nil, nil, WithSweepInterval(0))
}

func TestOutputRoundTrip(t *testing.T) {
	c := newTestCache()

	c.CacheOutput("a1", "result", 0)
	v, ok := c.GetOutput("a1")
	if !ok || v != "result" {
		t.Errorf("got (%v, %v)", v, ok)
	}

	if _, ok := c.GetOutput("missing"); ok {
		t.Error("unexpected hit for missing key")
	}
}

func TestEntryExpires(t *testing.T) {
	c := newTestCache()

	c.CacheOutput("x", "v", 50*time.Millisecond)
	if v, ok := c.GetOutput("x"); !ok || v != "v" {
		t.Fatalf("entry should be retrievable immediately, got (%v, %v)", v, ok)
	}

	time.Sleep(60 * time.Millisecond)
	if v, ok := c.GetOutput("x"); ok || v != nil {
		t.Errorf("expired entry returned (%v, %v)", v, ok)
	}

	// Lazy eviction removed the entry and counted a miss.
	stats := c.GetStats()
	if stats.Output.Size != 0 {
		t.Errorf("size after expiry = %d", stats.Output.Size)
	}
	if stats.Evicted != 1 {
		t.Errorf("evicted = %d, want 1", stats.Evicted)
	}
}

func TestWriteOverwrites(t *testing.T) {
	c := newTestCache()
	c.CacheOutput("a", "old", 0)
	c.CacheOutput("a", "new", 0)
	if v, _ := c.GetOutput("a"); v != "new" {
		t.Errorf("got %v, want new", v)
	}
}

func TestToolResultKeyOrderInsensitive(t *testing.T) {
	c := newTestCache()

	c.CacheToolResult("search", map[string]interface{}{"a": 1, "b": 2}, "hit", 0)
	v, ok := c.GetToolResult("search", map[string]interface{}{"b": 2, "a": 1})
	if !ok || v != "hit" {
		t.Errorf("reordered params missed: (%v, %v)", v, ok)
	}

	if _, ok := c.GetToolResult("search", map[string]interface{}{"a": 1, "b": 3}); ok {
		t.Error("different params should not collide")
	}
}

func TestInvalidateToolResult(t *testing.T) {
	c := newTestCache()

	p1 := map[string]interface{}{"q": "one"}
	p2 := map[string]interface{}{"q": "two"}
	c.CacheToolResult("search", p1, "r1", 0)
	c.CacheToolResult("search", p2, "r2", 0)
	c.CacheToolResult("fetch", p1, "r3", 0)

	// Targeted invalidation removes one entry.
	c.InvalidateToolResult("search", p1)
	if _, ok := c.GetToolResult("search", p1); ok {
		t.Error("invalidated entry still present")
	}
	if _, ok := c.GetToolResult("search", p2); !ok {
		t.Error("sibling entry removed")
	}

	// Nil params purge the whole tool id prefix.
	c.InvalidateToolResult("search", nil)
	if _, ok := c.GetToolResult("search", p2); ok {
		t.Error("prefix purge missed an entry")
	}
	if _, ok := c.GetToolResult("fetch", p1); !ok {
		t.Error("prefix purge crossed tool ids")
	}
}

func TestContextNamespaceIndependent(t *testing.T) {
	c := newTestCache()

	c.CacheOutput("k", "output", 0)
	c.CacheContext("k", "context", 0)

	if v, _ := c.GetOutput("k"); v != "output" {
		t.Errorf("output namespace = %v", v)
	}
	if v, _ := c.GetContext("k"); v != "context" {
		t.Errorf("context namespace = %v", v)
	}

	c.InvalidateContext("k")
	if _, ok := c.GetOutput("k"); !ok {
		t.Error("context invalidation leaked into output namespace")
	}
}

func TestGetOrComputeOutput(t *testing.T) {
	c := newTestCache()

	calls := 0
	produce := func() (interface{}, error) {
		calls++
		return "computed", nil
	}

	v, fromCache, err := c.GetOrComputeOutput("a1", 0, produce)
	if err != nil || fromCache || v != "computed" {
		t.Fatalf("first call = (%v, %v, %v)", v, fromCache, err)
	}

	v, fromCache, err = c.GetOrComputeOutput("a1", 0, produce)
	if err != nil || !fromCache || v != "computed" {
		t.Fatalf("second call = (%v, %v, %v)", v, fromCache, err)
	}
	if calls != 1 {
		t.Errorf("producer invoked %d times, want 1", calls)
	}
}

func TestGetOrComputeProducerError(t *testing.T) {
	c := newTestCache()

	boom := errors.New("boom")
	_, _, err := c.GetOrComputeToolResult("t", nil, 0, func() (interface{}, error) {
		return nil, boom
	})
	if err != boom {
		t.Errorf("err = %v, want producer error unmodified", err)
	}

	// A failed producer caches nothing.
	if _, ok := c.GetToolResult("t", nil); ok {
		t.Error("error result was cached")
	}
}

func TestSweep(t *testing.T) {
	c := newTestCache()

	c.CacheOutput("a", "v", 10*time.Millisecond)
	c.CacheToolResult("t", nil, "v", 10*time.Millisecond)
	c.CacheContext("k", "v", time.Hour)

	time.Sleep(20 * time.Millisecond)
	if n := c.Sweep(); n != 2 {
		t.Errorf("sweep evicted %d, want 2", n)
	}

	stats := c.GetStats()
	if stats.Context.Size != 1 {
		t.Error("sweep removed a live entry")
	}
	if stats.Evicted != 2 {
		t.Errorf("eviction counter = %d", stats.Evicted)
	}
}

func TestStatsHitRate(t *testing.T) {
	c := newTestCache()

	c.CacheOutput("a", "v", 0)
	c.GetOutput("a")
	c.GetOutput("a")
	c.GetOutput("missing")

	stats := c.GetStats()
	if stats.Output.Hits != 2 || stats.Output.Misses != 1 {
		t.Errorf("stats = %+v", stats.Output)
	}
	if stats.Output.HitRate < 0.66 || stats.Output.HitRate > 0.67 {
		t.Errorf("hit rate = %v", stats.Output.HitRate)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(nil, nil, WithSweepInterval(time.Millisecond))
	c.Close()
	c.Close()
}
