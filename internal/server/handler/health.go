package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint. lastLoopAt, when set,
// reports the scheduler's own tick-loop liveness (Scheduler.LastLoopAt) so
// an operator can distinguish "server is up" from "scheduler is stuck".
type HealthHandler struct {
	logger      *slog.Logger
	lastLoopAt  func() time.Time
	staleAfter  time.Duration
}

// NewHealthHandler creates a HealthHandler. lastLoopAt may be nil if no
// scheduler is wired into this process (e.g. a server-only deployment);
// staleAfter is the maximum acceptable gap since the last tick before the
// check reports degraded.
func NewHealthHandler(logger *slog.Logger, lastLoopAt func() time.Time, staleAfter time.Duration) *HealthHandler {
	return &HealthHandler{logger: logger, lastLoopAt: lastLoopAt, staleAfter: staleAfter}
}

// HealthCheck responds with server liveness and, when a scheduler is
// wired in, its tick-loop staleness.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.lastLoopAt == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}

	last := h.lastLoopAt()
	body["schedulerLastTick"] = last.UTC().Format(time.RFC3339)

	if last.IsZero() || time.Since(last) > h.staleAfter {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
