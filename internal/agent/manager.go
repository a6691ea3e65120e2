package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/brain"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Manager owns the cache of per-token Agents, built lazily on first use and
// evicted whenever a token's goal or strategy changes so the next Ensure
// rebuilds the Brain against fresh configuration.
type Manager struct {
	store      domain.Store
	chain      domain.ChainClient
	actions    *action.Registry
	chatClient brain.ChatCompleter
	brainBase  brain.Config
	log        *slog.Logger

	mu     sync.RWMutex
	agents map[domain.TokenId]*Agent
}

// NewManager builds a Manager. brainBase supplies the model/fallback/
// max-steps/min-confidence/environment fields shared by every token; the
// per-token Goal field is filled in from that token's Strategy at Ensure
// time.
func NewManager(store domain.Store, chain domain.ChainClient, actions *action.Registry, chatClient brain.ChatCompleter, brainBase brain.Config, log *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		chain:      chain,
		actions:    actions,
		chatClient: chatClient,
		brainBase:  brainBase,
		log:        log.With(slog.String("component", "agent_manager")),
		agents:     make(map[domain.TokenId]*Agent),
	}
}

// Ensure returns the cached Agent for tokenId, building one from the
// token's current Strategy if this is the first cycle to touch it.
func (m *Manager) Ensure(ctx context.Context, tokenId domain.TokenId) (*Agent, error) {
	m.mu.RLock()
	a, ok := m.agents[tokenId]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[tokenId]; ok {
		return a, nil
	}

	strategy, err := m.store.GetStrategy(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("agent: load strategy for token %d: %w", tokenId, err)
	}

	cfg := m.brainBase
	cfg.Goal = strategy.Params.TradingGoal

	a = &Agent{
		TokenId: tokenId,
		Chain:   m.chain,
		Brain:   brain.NewLLMBrain(m.chatClient, cfg, m.log),
		Actions: m.actions,
	}
	m.agents[tokenId] = a
	m.log.InfoContext(ctx, "agent ensured", slog.Int64("tokenId", int64(tokenId)))
	return a, nil
}

// Evict drops tokenId's cached Agent so the next Ensure rebuilds it — used
// after a goal change, a strategy update, or a permanent disable.
func (m *Manager) Evict(tokenId domain.TokenId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, tokenId)
}

// Count reports how many agents are currently cached, for health/metrics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}
