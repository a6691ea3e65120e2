package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/agent"
	"github.com/alanyoungcy/agentrunner/internal/brain"
	"github.com/alanyoungcy/agentrunner/internal/config"
	"github.com/alanyoungcy/agentrunner/internal/cycle"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/executor"
)

func newShortTTLDedup() *executor.Dedup {
	return executor.NewDedup(5 * time.Millisecond)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore implements domain.Store, recording only what submit's success
// path touches; every other method panics if called, so an unexpected call
// fails the test loudly instead of silently no-op'ing.
type fakeStore struct {
	domain.Store
	runs        []domain.RunRecord
	successes   int
	memoryEntries []domain.MemoryEntry
	goalsCleared int
}

func (f *fakeStore) ClearTradingGoal(ctx context.Context, tokenId domain.TokenId) error {
	f.goalsCleared++
	return nil
}

func (f *fakeStore) RecordRun(ctx context.Context, chainId int, maxRunRecords int, run domain.RunRecord) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) RecordSuccess(ctx context.Context, tokenId domain.TokenId) error {
	f.successes++
	return nil
}

func (f *fakeStore) Store(ctx context.Context, entry domain.MemoryEntry) error {
	f.memoryEntries = append(f.memoryEntries, entry)
	return nil
}

// fakeChain implements domain.ChainClient, counting ExecuteAction calls.
type fakeChain struct {
	domain.ChainClient
	executeCalls int
	result       domain.ExecuteResult
	err          error
}

func (f *fakeChain) ExecuteAction(ctx context.Context, tokenId domain.TokenId, payload domain.ActionPayload) (domain.ExecuteResult, error) {
	f.executeCalls++
	return f.result, f.err
}

func (f *fakeChain) ExecuteBatchAction(ctx context.Context, tokenId domain.TokenId, payload domain.ActionPayloads) (domain.ExecuteResult, error) {
	f.executeCalls++
	return f.result, f.err
}

func newTestScheduler(store *fakeStore, chain *fakeChain) *Scheduler {
	agents := agent.NewManager(nil, nil, nil, nil, brain.Config{}, testLogger())
	return New(store, chain, agents, nil, nil, nil, nil, config.SchedulerConfig{
		MaxRunRecords: 100,
	}, 1, nil, testLogger())
}

func TestSubmitDedupSuppressesDuplicateWithinWindow(t *testing.T) {
	store := &fakeStore{}
	chain := &fakeChain{result: domain.ExecuteResult{Hash: "0xabc"}}
	s := newTestScheduler(store, chain)

	result := cycle.RunResult{
		Action:  "swap",
		Payload: domain.ActionPayloads{{Target: "0xrouter", Value: "0", Data: "0x01"}},
	}

	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("first submit: unexpected error: %v", err)
	}
	if chain.executeCalls != 1 {
		t.Fatalf("expected 1 execute call after first submit, got %d", chain.executeCalls)
	}

	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("duplicate submit: unexpected error: %v", err)
	}
	if chain.executeCalls != 1 {
		t.Fatalf("expected duplicate submission to be suppressed, got %d execute calls", chain.executeCalls)
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected only 1 run recorded, got %d", len(store.runs))
	}
}

func TestSubmitDedupAllowsDifferentTokens(t *testing.T) {
	store := &fakeStore{}
	chain := &fakeChain{result: domain.ExecuteResult{Hash: "0xabc"}}
	s := newTestScheduler(store, chain)

	result := cycle.RunResult{
		Action:  "swap",
		Payload: domain.ActionPayloads{{Target: "0xrouter", Value: "0", Data: "0x01"}},
	}

	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("token 1 submit: unexpected error: %v", err)
	}
	if err := s.submit(context.Background(), domain.TokenId(2), "defi", result); err != nil {
		t.Fatalf("token 2 submit: unexpected error: %v", err)
	}
	if chain.executeCalls != 2 {
		t.Fatalf("expected 2 execute calls across distinct tokens, got %d", chain.executeCalls)
	}
}

func TestSubmitDedupAllowsAfterTTLExpiry(t *testing.T) {
	store := &fakeStore{}
	chain := &fakeChain{result: domain.ExecuteResult{Hash: "0xabc"}}
	s := newTestScheduler(store, chain)
	s.dedup = newShortTTLDedup()

	result := cycle.RunResult{
		Action:  "swap",
		Payload: domain.ActionPayloads{{Target: "0xrouter", Value: "0", Data: "0x01"}},
	}

	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("first submit: unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("second submit: unexpected error: %v", err)
	}
	if chain.executeCalls != 2 {
		t.Fatalf("expected dedup window to have expired, got %d execute calls", chain.executeCalls)
	}
}

func TestSubmitShadowModeSkipsChain(t *testing.T) {
	store := &fakeStore{}
	chain := &fakeChain{}
	s := newTestScheduler(store, chain)
	s.cfg.ShadowMode = true

	result := cycle.RunResult{Action: "swap"}
	if err := s.submit(context.Background(), domain.TokenId(1), "defi", result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.executeCalls != 0 {
		t.Fatalf("shadow mode must not touch the chain, got %d calls", chain.executeCalls)
	}
	if len(store.runs) != 1 || store.runs[0].RunMode != domain.RunModeShadow {
		t.Fatalf("expected a single shadow run record, got %+v", store.runs)
	}
}

func TestClassifyFailureFromError(t *testing.T) {
	cases := []struct {
		err      error
		category string
		code     string
	}{
		{context.DeadlineExceeded, "transient", "ERR_TRANSIENT_TIMEOUT"},
		{errors.New("insufficient funds for gas"), "insufficient_funds", "ERR_INSUFFICIENT_FUNDS"},
		{errors.New("nonce too low"), "transient", "ERR_NONCE_TOO_LOW"},
		{errors.New("cooldown not elapsed"), "business_rejected", "BUSINESS_POLICY_COOLDOWN"},
		{errors.New("execution reverted: paused"), "business_rejected", "BUSINESS_POLICY_REJECTED"},
		{errors.New("something unexpected"), "unknown", "ERR_UNKNOWN"},
	}
	for _, tc := range cases {
		got := classifyFailureFromError(tc.err)
		if got.Category != tc.category || got.Code != tc.code {
			t.Errorf("classifyFailureFromError(%q) = %+v, want {%s %s}", tc.err, got, tc.category, tc.code)
		}
	}
}

func TestIsDone(t *testing.T) {
	truth := true
	falsy := false
	if !isDone(true, "swap", nil) {
		t.Error("expected one-shot action with acted=true and nil done to be done")
	}
	if isDone(false, "swap", nil) {
		t.Error("expected acted=false to never be done without an explicit flag")
	}
	if isDone(true, "swap", &falsy) {
		t.Error("explicit done=false must override the one-shot inference")
	}
	if !isDone(false, "monitor", &truth) {
		t.Error("explicit done=true must override the one-shot inference")
	}
}
