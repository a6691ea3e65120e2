package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// MemoryStore implements domain.MemoryStore using PostgreSQL.
type MemoryStore struct {
	pool *pgxpool.Pool
}

// NewMemoryStore creates a new MemoryStore backed by the given pool.
func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{pool: pool}
}

// Recall returns the most recent memory entries for tokenId, newest first.
func (s *MemoryStore) Recall(ctx context.Context, tokenId domain.TokenId, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, token_id, type, action, params, result, reasoning, goal_id, timestamp
		FROM agent_memory
		WHERE token_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, int64(tokenId), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recall memory for token %d: %w", tokenId, err)
	}
	defer rows.Close()

	var out []domain.MemoryEntry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan memory entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Store appends a single memory entry.
func (s *MemoryStore) Store(ctx context.Context, entry domain.MemoryEntry) error {
	paramsJSON, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal memory params: %w", err)
	}
	var resultJSON []byte
	if entry.Result != nil {
		resultJSON, err = json.Marshal(entry.Result)
		if err != nil {
			return fmt.Errorf("postgres: marshal memory result: %w", err)
		}
	}

	const query = `
		INSERT INTO agent_memory (token_id, type, action, params, result, reasoning, goal_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err = s.pool.Exec(ctx, query,
		int64(entry.TokenId), string(entry.Type), entry.Action, paramsJSON, resultJSON, entry.Reasoning, entry.GoalId,
	)
	if err != nil {
		return fmt.Errorf("postgres: store memory entry for token %d: %w", entry.TokenId, err)
	}
	return nil
}

// UpsertGoal stores or replaces a goal-type memory entry keyed by goalId.
func (s *MemoryStore) UpsertGoal(ctx context.Context, tokenId domain.TokenId, goalId string, entry domain.MemoryEntry) error {
	paramsJSON, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal goal params: %w", err)
	}

	const del = `DELETE FROM agent_memory WHERE token_id = $1 AND goal_id = $2 AND type = 'goal'`
	if _, err := s.pool.Exec(ctx, del, int64(tokenId), goalId); err != nil {
		return fmt.Errorf("postgres: clear prior goal %d/%s: %w", tokenId, goalId, err)
	}

	const insert = `
		INSERT INTO agent_memory (token_id, type, action, params, reasoning, goal_id, timestamp)
		VALUES ($1, 'goal', $2, $3, $4, $5, NOW())`
	_, err = s.pool.Exec(ctx, insert, int64(tokenId), entry.Action, paramsJSON, entry.Reasoning, goalId)
	if err != nil {
		return fmt.Errorf("postgres: upsert goal %d/%s: %w", tokenId, goalId, err)
	}
	return nil
}

// CompleteGoal removes a goal-type memory entry.
func (s *MemoryStore) CompleteGoal(ctx context.Context, tokenId domain.TokenId, goalId string) error {
	const query = `DELETE FROM agent_memory WHERE token_id = $1 AND goal_id = $2 AND type = 'goal'`
	_, err := s.pool.Exec(ctx, query, int64(tokenId), goalId)
	if err != nil {
		return fmt.Errorf("postgres: complete goal %d/%s: %w", tokenId, goalId, err)
	}
	return nil
}

// ListGoals returns every open goal-type memory entry for tokenId.
func (s *MemoryStore) ListGoals(ctx context.Context, tokenId domain.TokenId) ([]domain.MemoryEntry, error) {
	const query = `
		SELECT id, token_id, type, action, params, result, reasoning, goal_id, timestamp
		FROM agent_memory
		WHERE token_id = $1 AND type = 'goal'
		ORDER BY timestamp DESC`

	rows, err := s.pool.Query(ctx, query, int64(tokenId))
	if err != nil {
		return nil, fmt.Errorf("postgres: list goals for token %d: %w", tokenId, err)
	}
	defer rows.Close()

	var out []domain.MemoryEntry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan goal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanMemoryEntry(row pgx.Row) (domain.MemoryEntry, error) {
	var e domain.MemoryEntry
	var id int64
	var tokenId int64
	var memType string
	var paramsJSON []byte
	var resultJSON []byte

	err := row.Scan(&id, &tokenId, &memType, &e.Action, &paramsJSON, &resultJSON, &e.Reasoning, &e.GoalId, &e.Timestamp)
	if err != nil {
		return e, err
	}
	e.ID = fmt.Sprintf("%d", id)
	e.TokenId = domain.TokenId(tokenId)
	e.Type = domain.MemoryType(memType)

	if len(paramsJSON) > 0 {
		if uerr := json.Unmarshal(paramsJSON, &e.Params); uerr != nil {
			return e, fmt.Errorf("unmarshal memory params: %w", uerr)
		}
	}
	if len(resultJSON) > 0 {
		var r domain.MemoryResult
		if uerr := json.Unmarshal(resultJSON, &r); uerr != nil {
			return e, fmt.Errorf("unmarshal memory result: %w", uerr)
		}
		e.Result = &r
	}
	return e, nil
}

// Compile-time interface check.
var _ domain.MemoryStore = (*MemoryStore)(nil)
