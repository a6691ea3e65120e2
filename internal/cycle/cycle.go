// Package cycle implements the cognitive cycle orchestrator: the single
// operation that takes an agent from "observe" to "submitted or blocked"
// each time the scheduler decides it is that token's turn to run.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/agent"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/guardrails"
)

// RunResult is what runAgentCycle returns — the scheduler inspects it to
// decide the next lease/backoff/cadence state; it is never a RunRecord
// itself (the scheduler or cycle persists that separately).
type RunResult struct {
	Acted           bool
	Action          string
	Reasoning       string
	Message         string
	Params          map[string]any
	Payload         domain.ActionPayloads
	Blocked         bool
	BlockReason     string
	Done            *bool
	NextCheckMs     *int64
	FailureCategory string
	ErrorCode       string
	ExecutionTrace  []domain.ExecutionTraceEntry
	ShadowCompare   *domain.ShadowComparison
}

// IsDone reports whether the brain explicitly set done=true. It does not
// apply the one-shot-action inference the scheduler layers on top in its
// step-l composite.
func (r RunResult) IsDone() bool {
	return r.Done != nil && *r.Done
}

// Orchestrator runs cognitive cycles against a Store for memory/strategy
// reads and a guardrails.Dispatcher for the post-encode safety check.
type Orchestrator struct {
	memory     domain.MemoryStore
	strategy   domain.StrategyStore
	guardrails *guardrails.Dispatcher
	log        *slog.Logger
}

// New builds an Orchestrator.
func New(memory domain.MemoryStore, strategy domain.StrategyStore, gr *guardrails.Dispatcher, log *slog.Logger) *Orchestrator {
	return &Orchestrator{memory: memory, strategy: strategy, guardrails: gr, log: log.With(slog.String("component", "cycle"))}
}

func (o *Orchestrator) trace(stage, status, note string) domain.ExecutionTraceEntry {
	return domain.ExecutionTraceEntry{Stage: stage, Status: status, At: time.Now(), Note: note}
}

// RunAgentCycle is the one public operation of this package (spec §4.6):
// observe -> recall -> think -> resolve -> encode -> guard -> decide.
// obs is passed in rather than re-observed here since the scheduler already
// called ChainClient.Observe once this tick and both need the same value.
func (o *Orchestrator) RunAgentCycle(ctx context.Context, a *agent.Agent, strat domain.Strategy, obs domain.Observation) RunResult {
	var trc []domain.ExecutionTraceEntry

	// 1. paused gate
	if obs.Paused {
		trc = append(trc, o.trace("observe", "blocked", "paused on-chain"))
		o.recordBlocked(ctx, a.TokenId, "wait", "Agent is paused on-chain", nil)
		return RunResult{
			Action:         "wait",
			Blocked:        true,
			BlockReason:    "Agent is paused on-chain",
			ExecutionTrace: trc,
		}
	}
	trc = append(trc, o.trace("observe", "ok", ""))

	// 2. recall(20)
	memories, err := o.memory.Recall(ctx, a.TokenId, 20)
	if err != nil {
		o.log.WarnContext(ctx, "recall failed", slog.Int64("tokenId", int64(a.TokenId)), slog.String("error", err.Error()))
	}
	trc = append(trc, o.trace("recall", "ok", fmt.Sprintf("%d entries", len(memories))))

	// 3. brain.think
	rc := a.BuildContext(obs)
	decision, err := a.Brain.Think(ctx, obs, memories, a.Actions, rc)
	if err != nil {
		trc = append(trc, o.trace("think", "error", err.Error()))
		o.log.ErrorContext(ctx, "brain.Think returned an error", slog.Int64("tokenId", int64(a.TokenId)), slog.String("error", err.Error()))
		return RunResult{Action: "wait", Message: "the decision engine failed this cycle", ExecutionTrace: trc}
	}
	trc = append(trc, o.trace("think", "ok", decision.Action))

	// 4. wait short-circuit
	if decision.IsWait() {
		o.recordDecision(ctx, a.TokenId, decision)
		return RunResult{
			Acted:          false,
			Action:         "wait",
			Reasoning:      decision.Reasoning,
			Message:        decision.Message,
			Done:           decision.Done,
			NextCheckMs:    decision.NextCheckMs,
			Blocked:        decision.IsBlocked(),
			BlockReason:    decision.BlockReason,
			ExecutionTrace: trc,
		}
	}

	// 5. resolve action by name
	act, ok := a.Actions.Get(decision.Action)
	if !ok {
		reason := "Unknown action: " + decision.Action
		trc = append(trc, o.trace("resolve", "blocked", reason))
		o.recordBlocked(ctx, a.TokenId, decision.Action, reason, decision.Params)
		return RunResult{
			Action:         decision.Action,
			Reasoning:      decision.Reasoning,
			Blocked:        true,
			BlockReason:    reason,
			ExecutionTrace: trc,
		}
	}
	trc = append(trc, o.trace("resolve", "ok", decision.Action))

	// 6. read-only short-circuit
	if act.ReadOnly {
		o.recordObservation(ctx, a.TokenId, decision)
		return RunResult{
			Acted:          true,
			Action:         decision.Action,
			Reasoning:      decision.Reasoning,
			Params:         decision.Params,
			Done:           decision.Done,
			NextCheckMs:    decision.NextCheckMs,
			ExecutionTrace: append(trc, o.trace("execute", "ok", "read-only")),
		}
	}

	// 7. encode with params ∪ {vault}; the schema check covers the brain's
	// params only, since vault is injected here rather than chosen by it.
	params := mergeParams(decision.Params, map[string]any{"vault": obs.Vault})
	var payload domain.ActionPayloads
	err = act.Parameters.Validate(decision.Params)
	if err == nil {
		payload, err = act.Encode(ctx, rc, params)
	}
	if err != nil {
		reason := "Encoding failed: " + err.Error()
		trc = append(trc, o.trace("encode", "error", reason))
		o.recordBlocked(ctx, a.TokenId, decision.Action, reason, decision.Params)
		return RunResult{
			Action:         decision.Action,
			Reasoning:      decision.Reasoning,
			Blocked:        true,
			BlockReason:    reason,
			ExecutionTrace: trc,
		}
	}
	trc = append(trc, o.trace("encode", "ok", ""))

	last, _ := payload.Last()

	// 8. build guardrails context and check
	grCtx := guardrails.Context{
		TokenId:          a.TokenId,
		Vault:            obs.Vault,
		Timestamp:        time.Now(),
		ActionName:       decision.Action,
		SpendAmount:      action.SpendAmount(last, params),
		ActionTokens:     action.ExtractActionTokens(params),
		AmountIn:         stringParam(params, "amountIn"),
		MinOut:           stringParam(params, "minOut"),
		AllowedTargets:   strat.Params.AllowedTargets,
		AllowedSelectors: strat.Params.AllowedSelectors,
		MaxValuePerRun:   strat.Params.MaxValuePerRun,
	}
	result := o.guardrails.Check(last, grCtx)

	// 9. violation handling
	if !result.OK {
		first := result.Violations[0]
		trc = append(trc, o.trace("guard", "blocked", first.Message))
		o.recordBlocked(ctx, a.TokenId, decision.Action, first.Message, decision.Params)
		return RunResult{
			Action:         decision.Action,
			Reasoning:      decision.Reasoning,
			Params:         params,
			Payload:        payload,
			Blocked:        true,
			BlockReason:    first.Message,
			Message:        "Action blocked by safety policy: " + first.Message,
			ErrorCode:      first.Code,
			ExecutionTrace: trc,
		}
	}
	trc = append(trc, o.trace("guard", "ok", ""))

	// 10. acted=true
	outParams := mergeParams(params, map[string]any{"txValue": last.Value})
	return RunResult{
		Acted:          true,
		Action:         decision.Action,
		Reasoning:      decision.Reasoning,
		Message:        decision.Message,
		Params:         outParams,
		Payload:        payload,
		Done:           decision.Done,
		NextCheckMs:    decision.NextCheckMs,
		ExecutionTrace: trc,
	}
}

func (o *Orchestrator) recordDecision(ctx context.Context, tokenId domain.TokenId, d domain.Decision) {
	o.store(ctx, domain.MemoryEntry{
		TokenId:   tokenId,
		Type:      domain.MemoryDecision,
		Action:    d.Action,
		Params:    d.Params,
		Reasoning: d.Reasoning,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) recordObservation(ctx context.Context, tokenId domain.TokenId, d domain.Decision) {
	o.store(ctx, domain.MemoryEntry{
		TokenId:   tokenId,
		Type:      domain.MemoryObservation,
		Action:    d.Action,
		Params:    d.Params,
		Reasoning: d.Reasoning,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) recordBlocked(ctx context.Context, tokenId domain.TokenId, actionName, reason string, params map[string]any) {
	o.store(ctx, domain.MemoryEntry{
		TokenId:   tokenId,
		Type:      domain.MemoryBlocked,
		Action:    actionName,
		Params:    params,
		Reasoning: reason,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) store(ctx context.Context, entry domain.MemoryEntry) {
	if err := o.memory.Store(ctx, entry); err != nil {
		o.log.WarnContext(ctx, "failed to store memory entry", slog.Int64("tokenId", int64(entry.TokenId)), slog.String("error", err.Error()))
	}
}

func mergeParams(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
