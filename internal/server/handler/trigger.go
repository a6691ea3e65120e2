package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// TriggerHandler serves the immediate-trigger endpoint: a client that knows
// it just changed something on-chain for a token (deposited, signed a
// permit) can ask the scheduler to run that token's cycle now instead of
// waiting for the next poll tick.
type TriggerHandler struct {
	triggers domain.TriggerBus
	logger   *slog.Logger
}

// NewTriggerHandler creates a TriggerHandler.
func NewTriggerHandler(triggers domain.TriggerBus, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{triggers: triggers, logger: logHandler(logger, "trigger")}
}

// Trigger publishes an immediate-cycle request for a token.
// POST /api/trigger/{tokenId}
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	tokenId, ok := tokenIdParam(w, r)
	if !ok {
		return
	}

	if err := h.triggers.PublishTrigger(r.Context(), tokenId); err != nil {
		h.logger.ErrorContext(r.Context(), "publish trigger failed", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to publish trigger")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"tokenId": tokenId, "triggered": true})
}

// tokenIdParam extracts and parses the {tokenId} path parameter, writing a
// 400 response and returning ok=false if it is missing or not an integer.
func tokenIdParam(w http.ResponseWriter, r *http.Request) (domain.TokenId, bool) {
	raw := pathParam(r, "tokenId")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tokenId path parameter")
		return 0, false
	}
	return domain.TokenId(n), true
}
