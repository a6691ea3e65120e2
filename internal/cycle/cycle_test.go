package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/agent"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/guardrails"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMemory struct {
	domain.Store
	mu      sync.Mutex
	entries []domain.MemoryEntry
	recallErr error
}

func (f *fakeMemory) Recall(ctx context.Context, tokenId domain.TokenId, limit int) ([]domain.MemoryEntry, error) {
	if f.recallErr != nil {
		return nil, f.recallErr
	}
	return nil, nil
}

func (f *fakeMemory) Store(ctx context.Context, entry domain.MemoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeBrain struct {
	decision domain.Decision
	err      error
}

func (f *fakeBrain) Think(ctx context.Context, observation domain.Observation, memories []domain.MemoryEntry, actions *action.Registry, rc action.Context) (domain.Decision, error) {
	return f.decision, f.err
}

func newTestOrchestrator(mem *fakeMemory) *Orchestrator {
	return New(mem, mem, guardrails.New(guardrails.GlobalLimits{}), testLogger())
}

func TestRunAgentCyclePausedGateBlocksImmediately(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{}, Actions: action.NewRegistry()}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{Paused: true})
	if !res.Blocked || res.Acted {
		t.Fatalf("expected a blocked, non-acted result for a paused agent, got %+v", res)
	}
	if len(mem.entries) != 1 || mem.entries[0].Type != domain.MemoryBlocked {
		t.Fatalf("expected a blocked memory entry to be recorded, got %v", mem.entries)
	}
}

func TestRunAgentCycleBrainErrorReturnsWaitNotPanic(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{err: errors.New("model down")}, Actions: action.NewRegistry()}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if res.Action != "wait" || res.Acted {
		t.Fatalf("expected a non-acted wait result on brain error, got %+v", res)
	}
}

func TestRunAgentCycleWaitDecisionShortCircuits(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "wait", Reasoning: "nothing to do"}}, Actions: action.NewRegistry()}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if res.Acted {
		t.Fatal("expected wait decision to not be marked acted")
	}
	if len(mem.entries) != 1 || mem.entries[0].Type != domain.MemoryDecision {
		t.Fatalf("expected a decision memory entry, got %v", mem.entries)
	}
}

func TestRunAgentCycleUnknownActionBlocks(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "teleport"}}, Actions: action.NewRegistry()}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if !res.Blocked {
		t.Fatal("expected unknown action to be blocked")
	}
	if len(mem.entries) != 1 || mem.entries[0].Type != domain.MemoryBlocked {
		t.Fatalf("expected a blocked memory entry, got %v", mem.entries)
	}
}

func TestRunAgentCycleReadOnlyActionShortCircuitsAsActed(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name:     "get_portfolio",
		ReadOnly: true,
		Execute:  func(ctx context.Context, rc action.Context, params map[string]any) (any, error) { return map[string]any{}, nil },
	})
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "get_portfolio"}}, Actions: reg}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if !res.Acted || res.Blocked {
		t.Fatalf("expected a read-only action to be acted and not blocked, got %+v", res)
	}
	if len(mem.entries) != 1 || mem.entries[0].Type != domain.MemoryObservation {
		t.Fatalf("expected an observation memory entry, got %v", mem.entries)
	}
}

func TestRunAgentCycleEncodeFailureBlocks(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name:       "swap",
		Parameters: action.Schema{Type: "object", Required: []string{"amountIn"}},
	})
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "swap", Params: map[string]any{}}}, Actions: reg}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if !res.Blocked {
		t.Fatalf("expected missing required params to block, got %+v", res)
	}
}

func TestRunAgentCycleGuardrailViolationBlocksWithoutActing(t *testing.T) {
	mem := &fakeMemory{}
	o := New(mem, mem, guardrails.New(guardrails.GlobalLimits{DefaultAllowedTargets: []string{"0xdeadbeef"}}), testLogger())
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name: "swap",
		Encode: func(ctx context.Context, rc action.Context, params map[string]any) (domain.ActionPayloads, error) {
			return domain.ActionPayloads{{Target: "0xnotallowed", Value: "0", Data: "0x"}}, nil
		},
	})
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "swap", Params: map[string]any{}}}, Actions: reg}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if !res.Blocked || res.Acted {
		t.Fatalf("expected guardrails violation to block without acting, got %+v", res)
	}
	if len(mem.entries) != 1 || mem.entries[0].Type != domain.MemoryBlocked {
		t.Fatalf("expected a blocked memory entry, got %v", mem.entries)
	}
}

func TestRunAgentCycleSuccessfulActionMarksActedWithPayload(t *testing.T) {
	mem := &fakeMemory{}
	o := newTestOrchestrator(mem)
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name: "swap",
		Encode: func(ctx context.Context, rc action.Context, params map[string]any) (domain.ActionPayloads, error) {
			return domain.ActionPayloads{{Target: "0xrouter", Value: "0", Data: "0xabc"}}, nil
		},
	})
	done := true
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "swap", Params: map[string]any{}, Done: &done}}, Actions: reg}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{Vault: "0xvault"})
	if !res.Acted || res.Blocked {
		t.Fatalf("expected the action to succeed and be marked acted, got %+v", res)
	}
	if len(res.Payload) != 1 || res.Payload[0].Target != "0xrouter" {
		t.Fatalf("expected the encoded payload to be returned, got %v", res.Payload)
	}
	if res.Params["vault"] != "0xvault" {
		t.Fatalf("expected vault to be merged into params, got %v", res.Params)
	}
	if res.Params["txValue"] != "0" {
		t.Fatalf("expected txValue to be merged into params, got %v", res.Params)
	}
	if !res.IsDone() {
		t.Fatal("expected the decision's done flag to carry through")
	}
}

func TestRunAgentCycleRecallErrorDoesNotAbortCycle(t *testing.T) {
	mem := &fakeMemory{recallErr: errors.New("db timeout")}
	o := newTestOrchestrator(mem)
	a := &agent.Agent{TokenId: 1, Brain: &fakeBrain{decision: domain.Decision{Action: "wait"}}, Actions: action.NewRegistry()}

	res := o.RunAgentCycle(context.Background(), a, domain.Strategy{}, domain.Observation{})
	if res.Action != "wait" {
		t.Fatalf("expected the cycle to continue after a recall error, got %+v", res)
	}
}
