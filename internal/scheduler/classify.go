package scheduler

import (
	"context"
	"errors"
	"strings"
)

// failureClassification is the (failureCategory, errorCode) pair recorded on
// a RunRecord for an uncaught error. Categories are deliberately coarse and
// conservative: an error the scheduler does not recognize is "unknown", never
// "permanent" — only the invalid-token-id check (handled separately in
// handleTokenError) can trigger a permanent disable.
type failureClassification struct {
	Category string
	Code     string
}

// classifyFailureFromError maps a raw error into a failureClassification.
// err is a Go error rather than a bare string: context cancellation is
// detected with errors.Is instead of substring matching.
func classifyFailureFromError(err error) failureClassification {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failureClassification{Category: "transient", Code: "ERR_TRANSIENT_TIMEOUT"}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "gas required exceeds allowance"):
		return failureClassification{Category: "insufficient_funds", Code: "ERR_INSUFFICIENT_FUNDS"}
	case strings.Contains(msg, "nonce too low"):
		return failureClassification{Category: "transient", Code: "ERR_NONCE_TOO_LOW"}
	case strings.Contains(msg, "cooldown"):
		return failureClassification{Category: "business_rejected", Code: "BUSINESS_POLICY_COOLDOWN"}
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return failureClassification{Category: "business_rejected", Code: "BUSINESS_POLICY_REJECTED"}
	default:
		return failureClassification{Category: "unknown", Code: "ERR_UNKNOWN"}
	}
}

func isInvalidTokenID(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid token id") || strings.Contains(msg, "erc721: invalid token id")
}
