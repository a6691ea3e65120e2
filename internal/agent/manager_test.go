package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/brain"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	domain.Store
	mu        sync.Mutex
	goals     map[domain.TokenId]string
	callCount int
	err       error
}

func (f *fakeStore) GetStrategy(ctx context.Context, tokenId domain.TokenId) (domain.Strategy, error) {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
	if f.err != nil {
		return domain.Strategy{}, f.err
	}
	return domain.Strategy{Params: domain.StrategyParams{TradingGoal: f.goals[tokenId]}}, nil
}

type fakeChain struct {
	domain.ChainClient
}

func TestManagerEnsureBuildsAgentFromStrategy(t *testing.T) {
	store := &fakeStore{goals: map[domain.TokenId]string{1: "swap daily"}}
	m := NewManager(store, &fakeChain{}, action.NewRegistry(), nil, brain.Config{Model: "gpt-4o"}, testLogger())

	a, err := m.Ensure(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokenId != 1 {
		t.Fatalf("expected TokenId 1, got %d", a.TokenId)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 cached agent, got %d", m.Count())
	}
}

func TestManagerEnsureCachesAgentAcrossCalls(t *testing.T) {
	store := &fakeStore{goals: map[domain.TokenId]string{1: "swap daily"}}
	m := NewManager(store, &fakeChain{}, action.NewRegistry(), nil, brain.Config{Model: "gpt-4o"}, testLogger())

	first, err := m.Ensure(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.Ensure(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected the same cached Agent pointer on the second Ensure call")
	}
	if store.callCount != 1 {
		t.Fatalf("expected GetStrategy to be called once, got %d", store.callCount)
	}
}

func TestManagerEnsurePropagatesStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db unavailable")}
	m := NewManager(store, &fakeChain{}, action.NewRegistry(), nil, brain.Config{}, testLogger())

	if _, err := m.Ensure(context.Background(), 1); err == nil {
		t.Fatal("expected error from a failing store")
	}
}

func TestManagerEvictForcesRebuild(t *testing.T) {
	store := &fakeStore{goals: map[domain.TokenId]string{1: "swap daily"}}
	m := NewManager(store, &fakeChain{}, action.NewRegistry(), nil, brain.Config{}, testLogger())

	if _, err := m.Ensure(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Evict(1)
	if m.Count() != 0 {
		t.Fatalf("expected eviction to drop the cached agent, count=%d", m.Count())
	}
	if _, err := m.Ensure(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.callCount != 2 {
		t.Fatalf("expected a second GetStrategy call after eviction, got %d", store.callCount)
	}
}

func TestManagerEnsureIsolatesTokensIndependently(t *testing.T) {
	store := &fakeStore{goals: map[domain.TokenId]string{1: "swap daily", 2: "wrap weekly"}}
	m := NewManager(store, &fakeChain{}, action.NewRegistry(), nil, brain.Config{}, testLogger())

	a1, err := m.Ensure(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := m.Ensure(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1.TokenId == a2.TokenId {
		t.Fatal("expected distinct agents for distinct tokens")
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 cached agents, got %d", m.Count())
	}
}
