package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/askorupski/agentflow/internal/lane"
)

// handleListLanes returns the status of every lane, highest priority first.
func (s *Server) handleListLanes(w http.ResponseWriter, _ *http.Request) {
	stats := s.scheduler.Stats()

	lanes := make([]lane.Status, 0, len(stats.Lanes))
	for _, st := range stats.Lanes {
		lanes = append(lanes, st)
	}
	sort.Slice(lanes, func(i, j int) bool {
		if lanes[i].Priority != lanes[j].Priority {
			return lanes[i].Priority < lanes[j].Priority
		}
		return lanes[i].Lane < lanes[j].Lane
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lanes": lanes,
	})
}

// handleGetLane returns the status of a single lane.
func (s *Server) handleGetLane(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "lane")

	status, err := s.scheduler.LaneStatus(lane.Name(name))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// handleClearLane force-releases every occupant of a lane.
func (s *Server) handleClearLane(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "lane")

	released, err := s.scheduler.ClearLane(lane.Name(name))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	s.logger.Info("lane cleared via API", "lane", name, "released", released)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lane":     name,
		"released": released,
	})
}

type laneConfigRequest struct {
	MaxConcurrent int `json:"max_concurrent"`
}

// handleUpdateLaneConfig resizes a lane's concurrency limit.
func (s *Server) handleUpdateLaneConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "lane")

	var req laneConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.scheduler.UpdateLaneConfig(lane.Name(name), req.MaxConcurrent); err != nil {
		respondDomainError(w, err)
		return
	}

	status, err := s.scheduler.LaneStatus(lane.Name(name))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}
