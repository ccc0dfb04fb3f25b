package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"curator/internal/persistence"
	"curator/internal/runlock"
	"curator/internal/scheduler"
)

// HealthResponse reports liveness and dependency checks
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse summarizes the ingestion service
type StatusResponse struct {
	Version  string               `json:"version"`
	Uptime   string               `json:"uptime"`
	Running  bool                 `json:"running"`
	NextRun  *time.Time           `json:"next_run,omitempty"`
	LastRun  *scheduler.RunRecord `json:"last_run,omitempty"`
	Database DatabaseStatus       `json:"database"`
}

// DatabaseStatus represents database health and backlog counts
type DatabaseStatus struct {
	Connected bool                    `json:"connected"`
	Stubs     *persistence.StubCounts `json:"stubs,omitempty"`
}

// TriggerResponse acknowledges a manual run request
type TriggerResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.log.Warn("Health check failed", "error", err)
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleStatus handles the /api/status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version: s.opts.Version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.trigger != nil {
		resp.Running = s.trigger.Running()
		resp.LastRun = s.trigger.LastRun()
		if next := s.trigger.Next(); !next.IsZero() {
			resp.NextRun = &next
		}
	}

	counts, err := s.db.Stubs().Counts(r.Context())
	if err != nil {
		s.log.Warn("Failed to count stubs", "error", err)
	} else {
		resp.Database = DatabaseStatus{Connected: true, Stubs: &counts}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleTriggerRun handles POST /api/runs
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		s.respondError(w, http.StatusServiceUnavailable, "scheduler is not configured")
		return
	}

	err := s.trigger.TriggerAsync("api")
	switch {
	case errors.Is(err, runlock.ErrRunInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrStopped):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.log.Error("Failed to trigger run", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to trigger run")
	default:
		s.respondJSON(w, http.StatusAccepted, TriggerResponse{Status: "accepted"})
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
