package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// RunHandler exposes the RunRecord log (§3) for a token, newest-first.
type RunHandler struct {
	store domain.RunStore
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(store domain.RunStore) *RunHandler {
	return &RunHandler{store: store}
}

// List returns the most recent run records for a token.
// GET /api/runs/{tokenId}
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	runs, err := h.store.ListRuns(r.Context(), tokenId, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
