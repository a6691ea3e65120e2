package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a new StrategyStore backed by the given pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// GetStrategy reads a single strategy row.
func (s *StrategyStore) GetStrategy(ctx context.Context, tokenId domain.TokenId) (domain.Strategy, error) {
	const query = `
		SELECT token_id, strategy_type, target, data, value, params,
		       min_interval_ms, require_positive_balance, max_failures, failure_count,
		       budget_day, daily_runs_used, daily_value_used, enabled,
		       last_run_at, next_check_at, last_error
		FROM token_strategies WHERE token_id = $1`

	row := s.pool.QueryRow(ctx, query, int64(tokenId))
	st, err := scanStrategy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Strategy{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %d: %w", tokenId, err)
	}
	return st, nil
}

// ListStrategies returns strategy rows with pagination.
func (s *StrategyStore) ListStrategies(ctx context.Context, opts domain.ListOpts) ([]domain.Strategy, error) {
	query := `
		SELECT token_id, strategy_type, target, data, value, params,
		       min_interval_ms, require_positive_balance, max_failures, failure_count,
		       budget_day, daily_runs_used, daily_value_used, enabled,
		       last_run_at, next_check_at, last_error
		FROM token_strategies ORDER BY token_id`
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
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertStrategy inserts or replaces a strategy row wholesale.
func (s *StrategyStore) UpsertStrategy(ctx context.Context, st domain.Strategy) error {
	paramsJSON, err := json.Marshal(st.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal strategy params %d: %w", st.TokenId, err)
	}

	const query = `
		INSERT INTO token_strategies (
			token_id, strategy_type, target, data, value, params,
			min_interval_ms, require_positive_balance, max_failures, failure_count,
			budget_day, daily_runs_used, daily_value_used, enabled,
			last_run_at, next_check_at, last_error
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17
		)
		ON CONFLICT (token_id) DO UPDATE SET
			strategy_type            = EXCLUDED.strategy_type,
			target                   = EXCLUDED.target,
			data                     = EXCLUDED.data,
			value                    = EXCLUDED.value,
			params                   = EXCLUDED.params,
			min_interval_ms          = EXCLUDED.min_interval_ms,
			require_positive_balance = EXCLUDED.require_positive_balance,
			max_failures             = EXCLUDED.max_failures,
			failure_count            = EXCLUDED.failure_count,
			budget_day               = EXCLUDED.budget_day,
			daily_runs_used          = EXCLUDED.daily_runs_used,
			daily_value_used         = EXCLUDED.daily_value_used,
			enabled                  = EXCLUDED.enabled,
			last_run_at              = EXCLUDED.last_run_at,
			next_check_at            = EXCLUDED.next_check_at,
			last_error               = EXCLUDED.last_error`

	_, err = s.pool.Exec(ctx, query,
		int64(st.TokenId), st.StrategyType, st.Target, st.Data, st.Value, paramsJSON,
		st.MinIntervalMs, st.RequirePositiveBalance, st.MaxFailures, st.FailureCount,
		st.BudgetDay, st.DailyRunsUsed, st.DailyValueUsed, st.Enabled,
		st.LastRunAt, st.NextCheckAt, st.LastError,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert strategy %d: %w", st.TokenId, err)
	}
	return nil
}

// ClearTradingGoal clears tradingGoal/goalSetAt from params, appending a
// GoalSnapshot to goalHistory if a goal was set.
func (s *StrategyStore) ClearTradingGoal(ctx context.Context, tokenId domain.TokenId) error {
	st, err := s.GetStrategy(ctx, tokenId)
	if err != nil {
		return err
	}
	if st.Params.TradingGoal == "" {
		return nil
	}

	setAt := time.Now()
	if st.Params.GoalSetAt != nil {
		setAt = *st.Params.GoalSetAt
	}
	st.Params.GoalHistory = append(st.Params.GoalHistory, domain.GoalSnapshot{
		Goal:      st.Params.TradingGoal,
		SetAt:     setAt,
		ClearedAt: time.Now(),
	})
	st.Params.TradingGoal = ""
	st.Params.GoalSetAt = nil

	return s.UpsertStrategy(ctx, st)
}

// UpdateNextCheckAt sets a strategy's cadence gate timestamp.
func (s *StrategyStore) UpdateNextCheckAt(ctx context.Context, tokenId domain.TokenId, when time.Time) error {
	const query = `UPDATE token_strategies SET next_check_at = $2 WHERE token_id = $1`
	tag, err := s.pool.Exec(ctx, query, int64(tokenId), when)
	if err != nil {
		return fmt.Errorf("postgres: update next_check_at %d: %w", tokenId, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetNextCheckAt reads a strategy's cadence gate timestamp.
func (s *StrategyStore) GetNextCheckAt(ctx context.Context, tokenId domain.TokenId) (*time.Time, error) {
	const query = `SELECT next_check_at FROM token_strategies WHERE token_id = $1`
	var at *time.Time
	err := s.pool.QueryRow(ctx, query, int64(tokenId)).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get next_check_at %d: %w", tokenId, err)
	}
	return at, nil
}

// RefreshDailyBudget resets daily_runs_used/daily_value_used to zero when
// budget_day has rolled over to today.
func (s *StrategyStore) RefreshDailyBudget(ctx context.Context, tokenId domain.TokenId, today time.Time) error {
	const query = `
		UPDATE token_strategies
		SET daily_runs_used = 0, daily_value_used = '0', budget_day = $2
		WHERE token_id = $1 AND budget_day < $2`
	_, err := s.pool.Exec(ctx, query, int64(tokenId), today)
	if err != nil {
		return fmt.Errorf("postgres: refresh daily budget %d: %w", tokenId, err)
	}
	return nil
}

// CheckBudget reports whether spending value in addition to the day's
// already-consumed budget would stay within any configured MaxValuePerRun.
// With no override configured, every spend passes (the guardrails
// dispatcher enforces the global default independently).
func (s *StrategyStore) CheckBudget(ctx context.Context, tokenId domain.TokenId, value string) (bool, error) {
	st, err := s.GetStrategy(ctx, tokenId)
	if err != nil {
		return false, err
	}
	if st.Params.MaxValuePerRun == "" {
		return true, nil
	}
	limit, err := decimal.NewFromString(st.Params.MaxValuePerRun)
	if err != nil {
		return true, nil
	}
	spend, err := decimal.NewFromString(value)
	if err != nil {
		return false, fmt.Errorf("postgres: check budget %d: invalid value %q", tokenId, value)
	}
	used, err := decimal.NewFromString(st.DailyValueUsed)
	if err != nil {
		used = decimal.Zero
	}
	return used.Add(spend).LessThanOrEqual(limit), nil
}

// ConsumeBudget increments daily_runs_used and daily_value_used by value.
func (s *StrategyStore) ConsumeBudget(ctx context.Context, tokenId domain.TokenId, value string) error {
	st, err := s.GetStrategy(ctx, tokenId)
	if err != nil {
		return err
	}
	spend, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("postgres: consume budget %d: invalid value %q", tokenId, value)
	}
	used, err := decimal.NewFromString(st.DailyValueUsed)
	if err != nil {
		used = decimal.Zero
	}

	const query = `
		UPDATE token_strategies
		SET daily_runs_used = daily_runs_used + 1, daily_value_used = $2
		WHERE token_id = $1`
	_, err = s.pool.Exec(ctx, query, int64(tokenId), used.Add(spend).String())
	if err != nil {
		return fmt.Errorf("postgres: consume budget %d: %w", tokenId, err)
	}
	return nil
}

// RecordSuccess clears failure_count and last_error on a successful cycle.
func (s *StrategyStore) RecordSuccess(ctx context.Context, tokenId domain.TokenId) error {
	const query = `
		UPDATE token_strategies
		SET failure_count = 0, last_error = '', last_run_at = NOW()
		WHERE token_id = $1`
	_, err := s.pool.Exec(ctx, query, int64(tokenId))
	if err != nil {
		return fmt.Errorf("postgres: record success %d: %w", tokenId, err)
	}
	return nil
}

// RecordFailure increments failure_count and auto-disables the strategy
// once max_failures is reached; the autopilot row is not changed.
func (s *StrategyStore) RecordFailure(ctx context.Context, tokenId domain.TokenId, reason string) (bool, error) {
	const query = `
		UPDATE token_strategies
		SET failure_count = failure_count + 1, last_error = $2, last_run_at = NOW()
		WHERE token_id = $1
		RETURNING failure_count, max_failures`

	var failureCount, maxFailures int
	err := s.pool.QueryRow(ctx, query, int64(tokenId), reason).Scan(&failureCount, &maxFailures)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("postgres: record failure %d: %w", tokenId, err)
	}

	autoDisabled := maxFailures > 0 && failureCount >= maxFailures
	if autoDisabled {
		if _, err := s.pool.Exec(ctx, `UPDATE token_strategies SET enabled = FALSE WHERE token_id = $1`, int64(tokenId)); err != nil {
			return false, fmt.Errorf("postgres: auto-disable strategy %d: %w", tokenId, err)
		}
	}
	return autoDisabled, nil
}

func scanStrategy(row pgx.Row) (domain.Strategy, error) {
	var st domain.Strategy
	var tokenId int64
	var paramsJSON []byte
	err := row.Scan(
		&tokenId, &st.StrategyType, &st.Target, &st.Data, &st.Value, &paramsJSON,
		&st.MinIntervalMs, &st.RequirePositiveBalance, &st.MaxFailures, &st.FailureCount,
		&st.BudgetDay, &st.DailyRunsUsed, &st.DailyValueUsed, &st.Enabled,
		&st.LastRunAt, &st.NextCheckAt, &st.LastError,
	)
	if err != nil {
		return st, err
	}
	st.TokenId = domain.TokenId(tokenId)
	if len(paramsJSON) > 0 {
		if uerr := json.Unmarshal(paramsJSON, &st.Params); uerr != nil {
			return st, fmt.Errorf("unmarshal strategy params: %w", uerr)
		}
	}
	return st, nil
}

// Compile-time interface check.
var _ domain.StrategyStore = (*StrategyStore)(nil)
