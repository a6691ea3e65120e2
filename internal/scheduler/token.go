package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/crypto"
	"github.com/alanyoungcy/agentrunner/internal/cycle"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// runSingleToken is the single-token pipeline (spec §4.7 a-m): cadence gate,
// enablement, lease, subscription/standby gates, cognitive cycle, then
// recording, backoff, and submission.
func (s *Scheduler) runSingleToken(ctx context.Context, tokenId domain.TokenId, skipCadenceCheck bool) {
	log := s.log.With(slog.Int64("tokenId", int64(tokenId)))

	// a. cadence gate
	if !skipCadenceCheck {
		next, err := s.store.GetNextCheckAt(ctx, tokenId)
		if err != nil {
			log.WarnContext(ctx, "cadence check failed, proceeding anyway", slog.String("error", err.Error()))
		} else if next != nil && next.After(time.Now()) {
			return
		}
	}

	if err := s.runLeasedToken(ctx, tokenId, log); err != nil {
		s.handleTokenError(ctx, tokenId, err)
	}
}

// runLeasedToken implements steps b-l. Any error returned is an uncaught
// exception per step m; gate misses (not enabled, lease not acquired,
// subscription lapsed, no goal) return nil.
func (s *Scheduler) runLeasedToken(ctx context.Context, tokenId domain.TokenId, log *slog.Logger) error {
	// b. enablement check
	ap, err := s.store.GetAutopilot(ctx, tokenId)
	if err != nil {
		return fmt.Errorf("load autopilot: %w", err)
	}
	if !ap.Enabled {
		return nil
	}

	// c. lease acquire/release. The Redis mirror is checked first so
	// contention between scheduler instances is usually rejected in Redis
	// instead of costing a round trip to Postgres on every tick; the SQL
	// lease remains authoritative and is what actually serialises a cycle.
	unlockMirror, ok := s.acquireLeaseMirror(ctx, tokenId, log)
	if !ok {
		return nil
	}

	leased, err := s.store.TryAcquireAutopilotLock(ctx, tokenId, s.cfg.LeaseMs)
	if err != nil {
		if unlockMirror != nil {
			unlockMirror()
		}
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !leased {
		if unlockMirror != nil {
			unlockMirror()
		}
		return nil
	}
	defer func() {
		if unlockMirror != nil {
			unlockMirror()
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.ReleaseAutopilotLock(releaseCtx, tokenId); err != nil {
			log.WarnContext(ctx, "failed to release autopilot lease", slog.String("error", err.Error()))
		}
	}()

	// d. subscription gate
	status, err := s.chain.ReadSubscriptionStatus(ctx, tokenId)
	if err != nil {
		return fmt.Errorf("read subscription status: %w", err)
	}
	switch status {
	case domain.SubscriptionGracePeriod, domain.SubscriptionExpired, domain.SubscriptionCanceled:
		s.agents.Evict(tokenId)
		return nil
	}

	// e. standby gate
	strat, err := s.store.GetStrategy(ctx, tokenId)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	if strat.IsLLM() && strings.TrimSpace(strat.Params.TradingGoal) == "" {
		return nil
	}

	// f. agent ensure
	a, err := s.agents.Ensure(ctx, tokenId)
	if err != nil {
		return fmt.Errorf("ensure agent: %w", err)
	}
	agentType, err := s.resolveAgentType(ctx, tokenId, strat.StrategyType)
	if err != nil {
		return err
	}
	obs, err := s.chain.Observe(ctx, tokenId)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	// g. run cycle
	result := s.cycle.RunAgentCycle(ctx, a, strat, obs)

	submittable := result.Acted && !result.Blocked && len(result.Payload) > 0

	// h. record non-TX path
	if !submittable {
		s.recordNonTxRun(ctx, tokenId, agentType, result)
		if result.IsDone() {
			s.clearAndEvict(ctx, tokenId)
			return nil
		}
	}

	// i. blocked backoff
	if result.Blocked {
		s.applyBlockedBackoff(ctx, tokenId, result.ErrorCode, result.BlockReason)
		return nil
	}

	// j. success path: reset backoff counter, compute next check
	s.resetBlocked(tokenId)
	s.scheduleNextCheck(ctx, tokenId, strat, result)

	// k. submit (only when acted, not blocked, and a payload exists)
	if !submittable {
		return nil
	}
	return s.submit(ctx, tokenId, agentType, result)
}

// acquireLeaseMirror checks the Redis lease mirror before the authoritative
// SQL lease. ok is false only when the mirror reports the lease already held
// elsewhere, meaning the token should be skipped this tick without touching
// Postgres. A nil LockManager, or any non-contention error from Redis,
// degrades to the SQL lease alone.
func (s *Scheduler) acquireLeaseMirror(ctx context.Context, tokenId domain.TokenId, log *slog.Logger) (unlock func(), ok bool) {
	if s.locks == nil {
		return nil, true
	}
	key := fmt.Sprintf("autopilot-lease:%d", tokenId)
	u, err := s.locks.Acquire(ctx, key, time.Duration(s.cfg.LeaseMs)*time.Millisecond)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, false
	}
	if err != nil {
		log.WarnContext(ctx, "lease mirror acquire failed, falling back to SQL lease alone", slog.String("error", err.Error()))
		return nil, true
	}
	return u, true
}

// resolveAgentType determines the agent blueprint: on-chain tag, then the
// chain-type default map (cache-cold fallback), then the strategy type, then
// "llm_trader". Anything outside the llm_ family is an unrecognized
// blueprint and is rejected.
func (s *Scheduler) resolveAgentType(ctx context.Context, tokenId domain.TokenId, strategyType string) (string, error) {
	tag, err := s.chain.ReadAgentType(ctx, tokenId)
	if err != nil {
		s.log.WarnContext(ctx, "read agent type failed, falling back",
			slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
		tag = ""
	}
	if tag == "" || tag == "unknown" {
		if mapped, ok := s.chainTypeAgentMap[s.chainID]; ok && mapped != "" {
			tag = mapped
		}
	}
	if tag == "" || tag == "unknown" {
		tag = strategyType
	}
	if tag == "" || tag == "unknown" {
		tag = "llm_trader"
	}
	if !strings.HasPrefix(tag, "llm_") {
		return "", fmt.Errorf("unknown agent blueprint %q", tag)
	}
	return tag, nil
}

func (s *Scheduler) recordNonTxRun(ctx context.Context, tokenId domain.TokenId, agentType string, result cycle.RunResult) {
	errText := result.Message
	if result.Blocked {
		errText = result.BlockReason
	}
	status := "ok"
	if result.Blocked {
		status = "blocked"
	}
	trace := append(append([]domain.ExecutionTraceEntry{}, result.ExecutionTrace...),
		domain.ExecutionTraceEntry{Stage: "record", Status: status, At: time.Now()})

	run := domain.RunRecord{
		TokenId:         tokenId,
		ActionType:      result.Action,
		SimulateOk:      !result.Blocked,
		Error:           errText,
		ErrorCode:       result.ErrorCode,
		FailureCategory: result.FailureCategory,
		ExecutionTrace:  trace,
		BrainType:       agentType,
		DecisionReason:  result.Reasoning,
		DecisionMessage: result.Message,
		CreatedAt:       time.Now(),
	}
	if strings.HasPrefix(result.ErrorCode, "SOFT_") || strings.HasPrefix(result.ErrorCode, "HARD_") {
		run.ViolationCode = result.ErrorCode
	}
	if err := s.store.RecordRun(ctx, int(s.chainID), s.cfg.MaxRunRecords, run); err != nil {
		s.log.WarnContext(ctx, "failed to record run", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
	}
}

// applyBlockedBackoff implements step i, and is reused by handleTokenError
// for the business_rejected classification in step m: the two outcomes share
// the same threshold/backoff state machine.
func (s *Scheduler) applyBlockedBackoff(ctx context.Context, tokenId domain.TokenId, errorCode, blockReason string) {
	count := s.incrementBlocked(tokenId)

	if count >= s.cfg.MaxBlockedRetries {
		run := domain.RunRecord{
			TokenId:         tokenId,
			FailureCategory: "business_rejected",
			ErrorCode:       "BUSINESS_AUTOPAUSE_THRESHOLD",
			Error:           blockReason,
			CreatedAt:       time.Now(),
		}
		if err := s.store.RecordRun(ctx, int(s.chainID), s.cfg.MaxRunRecords, run); err != nil {
			s.log.WarnContext(ctx, "failed to record autopause run", slog.String("error", err.Error()))
		}
		s.clearAndEvict(ctx, tokenId)
		s.notify(ctx, "autopause", "agent autopaused",
			fmt.Sprintf("token %d autopaused after %d consecutive blocked cycles: %s", tokenId, count, blockReason))
		return
	}

	backoffMs := s.cfg.BaseBackoffMs << uint(min(count-1, 16))
	if backoffMs > s.cfg.MaxBackoffMs || backoffMs <= 0 {
		backoffMs = s.cfg.MaxBackoffMs
	}

	if errorCode == "BUSINESS_POLICY_COOLDOWN" || strings.Contains(strings.ToLower(blockReason), "cooldown") {
		if secs, err := s.chain.ReadCooldownSeconds(ctx, tokenId); err == nil && secs > 0 {
			backoffMs = secs*1000 + 5_000
		}
	}

	if err := s.store.UpdateNextCheckAt(ctx, tokenId, time.Now().Add(time.Duration(backoffMs)*time.Millisecond)); err != nil {
		s.log.WarnContext(ctx, "failed to update next check at", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
	}
}

// scheduleNextCheck implements step j's cadence arithmetic.
func (s *Scheduler) scheduleNextCheck(ctx context.Context, tokenId domain.TokenId, strat domain.Strategy, result cycle.RunResult) {
	minInterval := s.cfg.PollInterval.Duration.Milliseconds()
	if strat.MinIntervalMs > 0 {
		minInterval = strat.MinIntervalMs
	}

	var nextMs int64
	switch {
	case result.Action == "wait" && !result.IsDone() && result.NextCheckMs != nil:
		nextMs = max(*result.NextCheckMs, s.cfg.WaitCadenceMinMs)
	case result.Acted && result.NextCheckMs != nil && *result.NextCheckMs < minInterval:
		nextMs = max(*result.NextCheckMs, s.cfg.FastFollowupMinMs)
	default:
		hint := minInterval
		if result.NextCheckMs != nil {
			hint = *result.NextCheckMs
		}
		nextMs = max(hint, minInterval)
	}

	if err := s.store.UpdateNextCheckAt(ctx, tokenId, time.Now().Add(time.Duration(nextMs)*time.Millisecond)); err != nil {
		s.log.WarnContext(ctx, "failed to update next check at", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
	}
}

// submit implements step k (shadow-mode handling, retrying submission) and
// step l (one-shot-action done semantics).
func (s *Scheduler) submit(ctx context.Context, tokenId domain.TokenId, agentType string, result cycle.RunResult) error {
	if s.cfg.ShadowMode && !s.cfg.ShadowExecuteTx {
		trace := append(append([]domain.ExecutionTraceEntry{}, result.ExecutionTrace...),
			domain.ExecutionTraceEntry{Stage: "execute", Status: "skip", At: time.Now(), Note: "shadow mode"})
		run := domain.RunRecord{
			TokenId:         tokenId,
			ActionType:      result.Action,
			SimulateOk:      true,
			RunMode:         domain.RunModeShadow,
			ShadowCompare:   result.ShadowCompare,
			ExecutionTrace:  trace,
			BrainType:       agentType,
			DecisionReason:  result.Reasoning,
			DecisionMessage: result.Message,
			CreatedAt:       time.Now(),
		}
		if err := s.store.RecordRun(ctx, int(s.chainID), s.cfg.MaxRunRecords, run); err != nil {
			s.log.WarnContext(ctx, "failed to record shadow run", slog.String("error", err.Error()))
		}
		return nil
	}

	actionHash := crypto.ActionHashBatch(result.Payload)
	dedupKey := fmt.Sprintf("%d:%s", tokenId, actionHash)
	if s.dedup != nil && s.dedup.IsDuplicate(dedupKey) {
		s.log.WarnContext(ctx, "skipping duplicate submission within dedup window",
			slog.Int64("tokenId", int64(tokenId)), slog.String("actionHash", actionHash))
		return nil
	}

	exec, err := withRetry(ctx, 2, 2*time.Second, func() (domain.ExecuteResult, error) {
		if len(result.Payload) > 1 {
			return s.chain.ExecuteBatchAction(ctx, tokenId, result.Payload)
		}
		return s.chain.ExecuteAction(ctx, tokenId, result.Payload[0])
	})
	if err != nil {
		return fmt.Errorf("submit action: %w", err)
	}

	s.recordMemoryResult(ctx, tokenId, domain.MemoryResult{Success: true, TxHash: exec.Hash})

	trace := append(append([]domain.ExecutionTraceEntry{}, result.ExecutionTrace...),
		domain.ExecutionTraceEntry{Stage: "execute", Status: "ok", At: time.Now()},
		domain.ExecutionTraceEntry{Stage: "verify", Status: "ok", At: time.Now()},
		domain.ExecutionTraceEntry{Stage: "record", Status: "ok", At: time.Now()},
	)
	run := domain.RunRecord{
		TokenId:         tokenId,
		ActionType:      result.Action,
		ActionHash:      actionHash,
		SimulateOk:      true,
		TxHash:          exec.Hash,
		ExecutionTrace:  trace,
		BrainType:       agentType,
		DecisionReason:  result.Reasoning,
		DecisionMessage: result.Message,
		GasUsed:         exec.GasUsed,
		CreatedAt:       time.Now(),
	}
	if err := s.store.RecordRun(ctx, int(s.chainID), s.cfg.MaxRunRecords, run); err != nil {
		s.log.WarnContext(ctx, "failed to record successful run", slog.String("error", err.Error()))
	}
	if err := s.store.RecordSuccess(ctx, tokenId); err != nil {
		s.log.WarnContext(ctx, "failed to record strategy success", slog.String("error", err.Error()))
	}

	if isDone(true, result.Action, result.Done) {
		s.clearAndEvict(ctx, tokenId)
	}
	return nil
}

// handleTokenError implements step m: classify the error, record a run and a
// memory entry, then route to permanent disable, the blocked-backoff state
// machine (business_rejected), or plain logging.
func (s *Scheduler) handleTokenError(ctx context.Context, tokenId domain.TokenId, err error) {
	class := classifyFailureFromError(err)
	msg := err.Error()

	s.recordMemoryResult(ctx, tokenId, domain.MemoryResult{Success: false, Error: msg})

	trace := []domain.ExecutionTraceEntry{{
		Stage: "record", Status: "error", At: time.Now(),
		Meta: map[string]any{"error": truncate(msg, 240)},
	}}
	run := domain.RunRecord{
		TokenId:         tokenId,
		Error:           msg,
		FailureCategory: class.Category,
		ErrorCode:       class.Code,
		ExecutionTrace:  trace,
		CreatedAt:       time.Now(),
	}
	if rErr := s.store.RecordRun(ctx, int(s.chainID), s.cfg.MaxRunRecords, run); rErr != nil {
		s.log.WarnContext(ctx, "failed to record error run", slog.String("error", rErr.Error()))
	}

	if isInvalidTokenID(err) {
		if dErr := s.store.Disable(ctx, tokenId, "invalid token id", ""); dErr != nil {
			s.log.WarnContext(ctx, "failed to disable autopilot for invalid token", slog.String("error", dErr.Error()))
		}
		s.clearAndEvict(ctx, tokenId)
		s.notify(ctx, "disable", "agent disabled", fmt.Sprintf("token %d permanently disabled: invalid token id", tokenId))
		return
	}

	if class.Category == "business_rejected" {
		s.applyBlockedBackoff(ctx, tokenId, class.Code, msg)
		return
	}

	autoDisabled, fErr := s.store.RecordFailure(ctx, tokenId, msg)
	if fErr != nil {
		s.log.WarnContext(ctx, "failed to record strategy failure", slog.String("error", fErr.Error()))
	}
	if autoDisabled {
		s.agents.Evict(tokenId)
		s.notify(ctx, "disable", "agent disabled", fmt.Sprintf("token %d disabled after exceeding max failures", tokenId))
	}

	s.log.ErrorContext(ctx, "run failed",
		slog.Int64("tokenId", int64(tokenId)),
		slog.String("category", class.Category),
		slog.String("error", msg))
}

func (s *Scheduler) clearAndEvict(ctx context.Context, tokenId domain.TokenId) {
	if err := s.store.ClearTradingGoal(ctx, tokenId); err != nil {
		s.log.WarnContext(ctx, "failed to clear trading goal", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
	}
	s.agents.Evict(tokenId)
	s.resetBlocked(tokenId)
}

func (s *Scheduler) recordMemoryResult(ctx context.Context, tokenId domain.TokenId, result domain.MemoryResult) {
	entry := domain.MemoryEntry{
		TokenId:   tokenId,
		Type:      domain.MemoryExecution,
		Result:    &result,
		Timestamp: time.Now(),
	}
	if err := s.store.Store(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "failed to store execution memory", slog.Int64("tokenId", int64(tokenId)), slog.String("error", err.Error()))
	}
}

// isDone implements the step-l composite: an explicit decision.done takes
// priority; otherwise a one-shot action (swap, wrap) is done once acted on,
// unless the decision explicitly said done=false.
func isDone(acted bool, actionName string, done *bool) bool {
	if done != nil {
		return *done
	}
	return acted && action.OneShotActions[actionName]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
