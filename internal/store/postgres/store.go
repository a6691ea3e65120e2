package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Store composes the six PostgreSQL-backed store implementations into the
// single domain.Store façade the scheduler and cycle packages depend on.
type Store struct {
	*AutopilotStore
	*StrategyStore
	*RunStore
	*MemoryStore
	*MarketSignalStore
	*AuditStore
}

// NewStore builds a Store from a shared connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		AutopilotStore:     NewAutopilotStore(pool),
		StrategyStore:      NewStrategyStore(pool),
		RunStore:           NewRunStore(pool),
		MemoryStore:        NewMemoryStore(pool),
		MarketSignalStore:  NewMarketSignalStore(pool),
		AuditStore:         NewAuditStore(pool),
	}
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
