package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// AutopilotHandler exposes read and manual-disable access to the
// enablement/lease records the scheduler's lease step (§4.7-b/c) arbitrates.
type AutopilotHandler struct {
	store  domain.AutopilotStore
	logger *slog.Logger
}

// NewAutopilotHandler creates an AutopilotHandler.
func NewAutopilotHandler(store domain.AutopilotStore, logger *slog.Logger) *AutopilotHandler {
	return &AutopilotHandler{store: store, logger: logHandler(logger, "autopilot")}
}

// List returns every autopilot row, paginated.
// GET /api/autopilot
func (h *AutopilotHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListAutopilots(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list autopilots")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Get returns one token's autopilot row.
// GET /api/autopilot/{tokenId}
func (h *AutopilotHandler) Get(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	row, err := h.store.GetAutopilot(r.Context(), tokenId)
	if err != nil {
		writeError(w, http.StatusNotFound, "autopilot not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// disableRequest is the body of POST /api/autopilot/{tokenId}/disable.
type disableRequest struct {
	Reason string `json:"reason"`
}

// Disable stops autopilot for a token outside of the scheduler's own
// error-driven disable path (manual operator intervention).
// POST /api/autopilot/{tokenId}/disable
func (h *AutopilotHandler) Disable(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	var req disableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "manual disable via control plane"
	}

	if err := h.store.Disable(r.Context(), tokenId, req.Reason, ""); err != nil {
		h.logger.ErrorContext(r.Context(), "disable failed", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to disable autopilot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": tokenId, "disabled": true})
}
