package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// AutopilotStore implements domain.AutopilotStore using PostgreSQL. The
// distributed lease is realised as a single UPDATE ... WHERE locked_until
// IS NULL OR locked_until <= NOW() returning the updated row count, so the
// database itself arbitrates concurrent acquisition.
type AutopilotStore struct {
	pool *pgxpool.Pool
}

// NewAutopilotStore creates a new AutopilotStore backed by the given pool.
func NewAutopilotStore(pool *pgxpool.Pool) *AutopilotStore {
	return &AutopilotStore{pool: pool}
}

// UpsertEnabled inserts or re-enables an autopilot row for tokenId.
func (s *AutopilotStore) UpsertEnabled(ctx context.Context, in domain.UpsertAutopilotInput) error {
	const query = `
		INSERT INTO autopilots (
			token_id, renter, operator, permit_expires, permit_deadline, sig,
			enabled, last_reason, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, '', NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			renter          = EXCLUDED.renter,
			operator        = EXCLUDED.operator,
			permit_expires  = EXCLUDED.permit_expires,
			permit_deadline = EXCLUDED.permit_deadline,
			sig             = EXCLUDED.sig,
			enabled         = TRUE,
			last_reason     = '',
			locked_until    = NULL,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(in.TokenId), in.Renter, in.Operator, in.PermitExpires, in.PermitDeadline, in.Sig,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert autopilot %d: %w", in.TokenId, err)
	}
	return nil
}

// Disable marks an autopilot disabled with a reason. txHash is accepted but
// not stored.
func (s *AutopilotStore) Disable(ctx context.Context, tokenId domain.TokenId, reason string, txHash string) error {
	const query = `
		UPDATE autopilots
		SET enabled = FALSE, last_reason = $2, locked_until = NULL, updated_at = NOW()
		WHERE token_id = $1`

	tag, err := s.pool.Exec(ctx, query, int64(tokenId), reason)
	if err != nil {
		return fmt.Errorf("postgres: disable autopilot %d: %w", tokenId, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetAutopilot reads a single autopilot row.
func (s *AutopilotStore) GetAutopilot(ctx context.Context, tokenId domain.TokenId) (domain.Autopilot, error) {
	const query = `
		SELECT token_id, renter, operator, permit_expires, permit_deadline, sig,
		       enabled, last_reason, locked_until, created_at, updated_at
		FROM autopilots WHERE token_id = $1`

	row := s.pool.QueryRow(ctx, query, int64(tokenId))
	a, err := scanAutopilot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Autopilot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Autopilot{}, fmt.Errorf("postgres: get autopilot %d: %w", tokenId, err)
	}
	return a, nil
}

// ListAutopilots returns autopilot rows with pagination.
func (s *AutopilotStore) ListAutopilots(ctx context.Context, opts domain.ListOpts) ([]domain.Autopilot, error) {
	query := `
		SELECT token_id, renter, operator, permit_expires, permit_deadline, sig,
		       enabled, last_reason, locked_until, created_at, updated_at
		FROM autopilots ORDER BY token_id`
	args := []any{}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list autopilots: %w", err)
	}
	defer rows.Close()

	var out []domain.Autopilot
	for rows.Next() {
		a, err := scanAutopilot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan autopilot: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListEnabledTokenIds returns every tokenId with enabled = true, regardless
// of lease state.
func (s *AutopilotStore) ListEnabledTokenIds(ctx context.Context) ([]domain.TokenId, error) {
	const query = `SELECT token_id FROM autopilots WHERE enabled ORDER BY token_id`
	return queryTokenIds(ctx, s.pool, query)
}

// ListSchedulableTokenIds returns enabled tokens whose strategy's
// next_check_at is due (NULL or <= NOW()).
func (s *AutopilotStore) ListSchedulableTokenIds(ctx context.Context) ([]domain.TokenId, error) {
	const query = `
		SELECT a.token_id
		FROM autopilots a
		JOIN token_strategies t ON t.token_id = a.token_id
		WHERE a.enabled AND t.enabled
		  AND (t.next_check_at IS NULL OR t.next_check_at <= NOW())
		ORDER BY COALESCE(t.next_check_at, 'epoch'::timestamptz) ASC`
	return queryTokenIds(ctx, s.pool, query)
}

// GetEarliestNextCheckAt returns the soonest next_check_at among enabled,
// schedulable strategies, used to compute the scheduler's adaptive sleep.
func (s *AutopilotStore) GetEarliestNextCheckAt(ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT MIN(t.next_check_at)
		FROM autopilots a
		JOIN token_strategies t ON t.token_id = a.token_id
		WHERE a.enabled AND t.enabled`

	var at *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&at); err != nil {
		return nil, fmt.Errorf("postgres: earliest next_check_at: %w", err)
	}
	return at, nil
}

// TryAcquireAutopilotLock atomically acquires the distributed lease for
// tokenId by extending locked_until only if it is unset or already expired.
func (s *AutopilotStore) TryAcquireAutopilotLock(ctx context.Context, tokenId domain.TokenId, leaseMs int64) (bool, error) {
	const query = `
		UPDATE autopilots
		SET locked_until = NOW() + ($2 || ' milliseconds')::interval
		WHERE token_id = $1
		  AND (locked_until IS NULL OR locked_until <= NOW())`

	tag, err := s.pool.Exec(ctx, query, int64(tokenId), leaseMs)
	if err != nil {
		return false, fmt.Errorf("postgres: acquire lease %d: %w", tokenId, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseAutopilotLock clears the lease so another scheduler instance may
// pick the token up immediately instead of waiting out the lease TTL.
func (s *AutopilotStore) ReleaseAutopilotLock(ctx context.Context, tokenId domain.TokenId) error {
	const query = `UPDATE autopilots SET locked_until = NULL WHERE token_id = $1`
	_, err := s.pool.Exec(ctx, query, int64(tokenId))
	if err != nil {
		return fmt.Errorf("postgres: release lease %d: %w", tokenId, err)
	}
	return nil
}

// CountActiveAutopilotLocks reports how many leases are currently held.
// The scheduler does not call it.
func (s *AutopilotStore) CountActiveAutopilotLocks(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM autopilots WHERE locked_until IS NOT NULL AND locked_until > NOW()`
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count active leases: %w", err)
	}
	return n, nil
}

func scanAutopilot(row pgx.Row) (domain.Autopilot, error) {
	var a domain.Autopilot
	var tokenId int64
	err := row.Scan(
		&tokenId, &a.Renter, &a.Operator, &a.PermitExpires, &a.PermitDeadline, &a.Sig,
		&a.Enabled, &a.LastReason, &a.LockedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	a.TokenId = domain.TokenId(tokenId)
	return a, err
}

func queryTokenIds(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]domain.TokenId, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query token ids: %w", err)
	}
	defer rows.Close()

	var out []domain.TokenId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan token id: %w", err)
		}
		out = append(out, domain.TokenId(id))
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.AutopilotStore = (*AutopilotStore)(nil)
