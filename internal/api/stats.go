package api

import (
	"net/http"

	"github.com/askorupski/agentflow/internal/escalate"
	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/recovery"
	"github.com/askorupski/agentflow/internal/runcache"
	"github.com/askorupski/agentflow/internal/thinking"
)

// statsResponse aggregates every subsystem's counters in one snapshot.
type statsResponse struct {
	Lanes         lane.Stats     `json:"lanes"`
	Recovery      recovery.Stats `json:"recovery"`
	Thinking      thinking.Stats `json:"thinking"`
	Escalation    escalate.Stats `json:"escalation"`
	Cache         runcache.Stats `json:"cache"`
	EventsDropped int64          `json:"events_dropped"`
}

// handleStats returns aggregate counters from all subsystems.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statsResponse{
		Lanes:         s.scheduler.Stats(),
		Recovery:      s.engine.GetStats(),
		Thinking:      s.resolver.GetStats(),
		Escalation:    s.analyzer.GetStats(),
		Cache:         s.cache.GetStats(),
		EventsDropped: s.bus.DroppedCount(),
	})
}

// handleCacheStats returns run cache counters per namespace.
func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.cache.GetStats())
}

// handleCacheSweep evicts expired entries immediately.
func (s *Server) handleCacheSweep(w http.ResponseWriter, _ *http.Request) {
	evicted := s.cache.Sweep()
	respondJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}

// handleSystem returns a host diagnostics snapshot.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.collector.Collect())
}
