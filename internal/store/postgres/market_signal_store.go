package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// MarketSignalStore implements domain.MarketSignalStore using PostgreSQL.
// Not read by the scheduler's hot path; populated by an external ingestion
// collaborator and exposed for brains/tools that want a broader market view.
type MarketSignalStore struct {
	pool *pgxpool.Pool
}

// NewMarketSignalStore creates a new MarketSignalStore backed by the given pool.
func NewMarketSignalStore(pool *pgxpool.Pool) *MarketSignalStore {
	return &MarketSignalStore{pool: pool}
}

// UpsertSignal inserts or updates a single market signal.
func (s *MarketSignalStore) UpsertSignal(ctx context.Context, sig domain.MarketSignal) error {
	const query = `
		INSERT INTO market_signals (chain_id, pair, price, volume, observed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, pair) DO UPDATE SET
			price       = EXCLUDED.price,
			volume      = EXCLUDED.volume,
			observed_at = EXCLUDED.observed_at`

	_, err := s.pool.Exec(ctx, query, sig.ChainId, sig.Pair, sig.Price, sig.Volume, sig.ObservedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert market signal %s: %w", sig.Pair, err)
	}
	return nil
}

// GetSignal reads a single market signal.
func (s *MarketSignalStore) GetSignal(ctx context.Context, chainId int, pair string) (domain.MarketSignal, error) {
	const query = `SELECT chain_id, pair, price, volume, observed_at FROM market_signals WHERE chain_id = $1 AND pair = $2`
	row := s.pool.QueryRow(ctx, query, chainId, pair)

	var sig domain.MarketSignal
	err := row.Scan(&sig.ChainId, &sig.Pair, &sig.Price, &sig.Volume, &sig.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketSignal{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketSignal{}, fmt.Errorf("postgres: get market signal %s: %w", pair, err)
	}
	return sig, nil
}

// ListSignals returns every market signal known for chainId.
func (s *MarketSignalStore) ListSignals(ctx context.Context, chainId int) ([]domain.MarketSignal, error) {
	const query = `SELECT chain_id, pair, price, volume, observed_at FROM market_signals WHERE chain_id = $1 ORDER BY pair`
	rows, err := s.pool.Query(ctx, query, chainId)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market signals for chain %d: %w", chainId, err)
	}
	defer rows.Close()

	var out []domain.MarketSignal
	for rows.Next() {
		var sig domain.MarketSignal
		if err := rows.Scan(&sig.ChainId, &sig.Pair, &sig.Price, &sig.Volume, &sig.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan market signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.MarketSignalStore = (*MarketSignalStore)(nil)
