package scheduler

import (
	"context"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// withRetry retries fn up to maxAttempts times with exponential backoff
// starting at baseDelay, used for executeAction/executeBatchAction submission
// per spec (maxAttempts=2, baseDelayMs=2000). It respects ctx cancellation
// between attempts.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() (domain.ExecuteResult, error)) (domain.ExecuteResult, error) {
	var result domain.ExecuteResult
	var err error

	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.ExecuteResult{}, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return domain.ExecuteResult{}, err
}
