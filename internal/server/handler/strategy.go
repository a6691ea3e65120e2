package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// StrategyHandler exposes strategy reads and the trading-goal mutation the
// standby gate (§4.7-d) checks each cycle.
type StrategyHandler struct {
	store  domain.StrategyStore
	logger *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(store domain.StrategyStore, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{store: store, logger: logHandler(logger, "strategy")}
}

// List returns every strategy row, paginated.
// GET /api/strategy
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListStrategies(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list strategies")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Get returns one token's strategy row.
// GET /api/strategy/{tokenId}
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	s, err := h.store.GetStrategy(r.Context(), tokenId)
	if err != nil {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Upsert creates or replaces a token's strategy configuration.
// PUT /api/strategy/{tokenId}
func (h *StrategyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	var s domain.Strategy
	if !decodeJSON(w, r, &s) {
		return
	}
	s.TokenId = tokenId

	if err := h.store.UpsertStrategy(r.Context(), s); err != nil {
		h.logger.ErrorContext(r.Context(), "upsert strategy failed", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to upsert strategy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": tokenId, "saved": true})
}

// goalRequest is the body of PUT /api/strategy/{tokenId}/goal.
type goalRequest struct {
	Goal string `json:"goal"`
}

// SetGoal sets a new free-text trading goal for an LLM-driven strategy;
// the prior goal (if any) moves into goalHistory rather than being lost.
// PUT /api/strategy/{tokenId}/goal
func (h *StrategyHandler) SetGoal(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	var req goalRequest
	if !decodeJSON(w, r, &req) || req.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal must not be empty")
		return
	}

	s, err := h.store.GetStrategy(r.Context(), tokenId)
	if err != nil {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	s.Params.TradingGoal = req.Goal
	if err := h.store.UpsertStrategy(r.Context(), s); err != nil {
		h.logger.ErrorContext(r.Context(), "set goal failed", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to set goal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": tokenId, "goal": req.Goal})
}

// ClearGoal clears the active trading goal, moving it to goalHistory and
// returning the token to the standby gate's "no goal" state.
// DELETE /api/strategy/{tokenId}/goal
func (h *StrategyHandler) ClearGoal(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}
	if err := h.store.ClearTradingGoal(r.Context(), tokenId); err != nil {
		h.logger.ErrorContext(r.Context(), "clear goal failed", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to clear goal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": tokenId, "goal": ""})
}
