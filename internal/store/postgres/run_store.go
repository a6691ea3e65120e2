package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL. Trim is best-effort:
// rows beyond maxRunRecords for the chain are archived (if an Archiver is
// wired by the caller) and deleted in the same call that inserts a new run.
type RunStore struct {
	pool *pgxpool.Pool
	// onTrim, if set, is invoked with rows about to be deleted so the
	// caller can archive them before they are lost. It must not block long;
	// it runs before the trimmed rows are deleted, and the delete goes ahead
	// whatever the hook does with them.
	onTrim func(ctx context.Context, chainId int, tokenId domain.TokenId, trimmed []domain.RunRecord)
}

// NewRunStore creates a new RunStore backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// SetTrimHook installs a callback invoked with rows removed by retention
// trimming, used to archive them to cold storage before loss.
func (s *RunStore) SetTrimHook(fn func(ctx context.Context, chainId int, tokenId domain.TokenId, trimmed []domain.RunRecord)) {
	s.onTrim = fn
}

// RecordRun appends a RunRecord and trims the chain's run log down to
// maxRunRecords, archiving trimmed rows via the trim hook if installed.
func (s *RunStore) RecordRun(ctx context.Context, chainId int, maxRunRecords int, run domain.RunRecord) error {
	traceJSON, err := json.Marshal(run.ExecutionTrace)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution trace: %w", err)
	}
	var shadowJSON []byte
	if run.ShadowCompare != nil {
		shadowJSON, err = json.Marshal(run.ShadowCompare)
		if err != nil {
			return fmt.Errorf("postgres: marshal shadow compare: %w", err)
		}
	}

	const insert = `
		INSERT INTO runs (
			chain_id, token_id, action_type, action_hash, simulate_ok, tx_hash,
			error, error_code, failure_category, execution_trace, run_mode,
			shadow_compare, brain_type, intent_type, decision_reason,
			decision_message, violation_code, gas_used, pnl_usd
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19
		)`

	_, err = s.pool.Exec(ctx, insert,
		chainId, int64(run.TokenId), run.ActionType, run.ActionHash, run.SimulateOk, run.TxHash,
		run.Error, run.ErrorCode, run.FailureCategory, traceJSON, string(run.RunMode),
		shadowJSON, run.BrainType, run.IntentType, run.DecisionReason,
		run.DecisionMessage, run.ViolationCode, run.GasUsed, run.PnLUsd,
	)
	if err != nil {
		return fmt.Errorf("postgres: record run for token %d: %w", run.TokenId, err)
	}

	if maxRunRecords <= 0 {
		return nil
	}
	return s.trimExcess(ctx, chainId, run.TokenId, maxRunRecords)
}

func (s *RunStore) trimExcess(ctx context.Context, chainId int, tokenId domain.TokenId, maxRunRecords int) error {
	if s.onTrim != nil {
		const selectExcess = `
			SELECT id, token_id, action_type, action_hash, simulate_ok, tx_hash,
			       error, error_code, failure_category, execution_trace, run_mode,
			       shadow_compare, brain_type, intent_type, decision_reason,
			       decision_message, violation_code, gas_used, pnl_usd, created_at
			FROM runs
			WHERE chain_id = $1
			ORDER BY created_at DESC
			OFFSET $2`

		rows, err := s.pool.Query(ctx, selectExcess, chainId, maxRunRecords)
		if err != nil {
			return fmt.Errorf("postgres: select excess runs: %w", err)
		}
		var trimmed []domain.RunRecord
		for rows.Next() {
			rr, err := scanRunRecord(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("postgres: scan trimmed run: %w", err)
			}
			trimmed = append(trimmed, rr)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("postgres: iterate trimmed runs: %w", err)
		}
		if len(trimmed) > 0 {
			s.onTrim(ctx, chainId, tokenId, trimmed)
		}
	}

	const del = `
		DELETE FROM runs
		WHERE chain_id = $1 AND id IN (
			SELECT id FROM runs WHERE chain_id = $1 ORDER BY created_at DESC OFFSET $2
		)`
	if _, err := s.pool.Exec(ctx, del, chainId, maxRunRecords); err != nil {
		return fmt.Errorf("postgres: trim runs for chain %d: %w", chainId, err)
	}
	return nil
}

// ListRuns returns the most recent runs for tokenId, newest first.
func (s *RunStore) ListRuns(ctx context.Context, tokenId domain.TokenId, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, token_id, action_type, action_hash, simulate_ok, tx_hash,
		       error, error_code, failure_category, execution_trace, run_mode,
		       shadow_compare, brain_type, intent_type, decision_reason,
		       decision_message, violation_code, gas_used, pnl_usd, created_at
		FROM runs
		WHERE token_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, int64(tokenId), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs for token %d: %w", tokenId, err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		rr, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func scanRunRecord(row pgx.Row) (domain.RunRecord, error) {
	var rr domain.RunRecord
	var id int64
	var tokenId int64
	var traceJSON []byte
	var shadowJSON []byte
	var runMode string

	err := row.Scan(
		&id, &tokenId, &rr.ActionType, &rr.ActionHash, &rr.SimulateOk, &rr.TxHash,
		&rr.Error, &rr.ErrorCode, &rr.FailureCategory, &traceJSON, &runMode,
		&shadowJSON, &rr.BrainType, &rr.IntentType, &rr.DecisionReason,
		&rr.DecisionMessage, &rr.ViolationCode, &rr.GasUsed, &rr.PnLUsd, &rr.CreatedAt,
	)
	if err != nil {
		return rr, err
	}
	rr.ID = fmt.Sprintf("%d", id)
	rr.TokenId = domain.TokenId(tokenId)
	rr.RunMode = domain.RunMode(runMode)

	if len(traceJSON) > 0 {
		if uerr := json.Unmarshal(traceJSON, &rr.ExecutionTrace); uerr != nil {
			return rr, fmt.Errorf("unmarshal execution trace: %w", uerr)
		}
	}
	if len(shadowJSON) > 0 {
		var sc domain.ShadowComparison
		if uerr := json.Unmarshal(shadowJSON, &sc); uerr != nil {
			return rr, fmt.Errorf("unmarshal shadow compare: %w", uerr)
		}
		rr.ShadowCompare = &sc
	}
	return rr, nil
}

// Compile-time interface check.
var _ domain.RunStore = (*RunStore)(nil)
