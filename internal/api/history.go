package api

import (
	"net/http"
	"strconv"

	"github.com/askorupski/agentflow/internal/recovery"
)

const defaultHistoryPageSize = 100

// handleRecoveryHistory returns recovery outcomes, newest first when served
// from the journal. With no journal attached it falls back to the engine's
// in-memory history.
//
// Query parameters: task (filter by task id), strategy, limit.
func (s *Server) handleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	taskID := q.Get("task")
	strategy := q.Get("strategy")
	limit := parseLimit(q.Get("limit"), defaultHistoryPageSize)

	if s.journal == nil {
		records := s.engine.GetHistory(recovery.HistoryFilter{
			Strategy: recovery.Strategy(strategy),
			Limit:    limit,
		})
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source":  "memory",
			"history": records,
		})
		return
	}

	rows, err := s.journal.ListRecovery(r.Context(), taskID, limit)
	if err != nil {
		s.logger.Error("recovery history query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	if strategy != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Strategy == strategy {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":  "journal",
		"history": rows,
	})
}

// handleEscalations returns recorded escalation recommendations, newest
// first. Requires the journal; escalation analytics are otherwise only
// available in aggregate via /api/v1/stats.
func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), defaultHistoryPageSize)

	if s.journal == nil {
		respondError(w, http.StatusNotImplemented, "history journal disabled")
		return
	}

	rows, err := s.journal.ListEscalations(r.Context(), limit)
	if err != nil {
		s.logger.Error("escalation history query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": rows,
	})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
