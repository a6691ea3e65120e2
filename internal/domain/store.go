package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// UpsertAutopilotInput is the input to AutopilotStore.UpsertEnabled.
type UpsertAutopilotInput struct {
	TokenId        TokenId
	Renter         string
	Operator       string
	PermitExpires  *time.Time
	PermitDeadline *time.Time
	Sig            string
}

// AutopilotStore persists Autopilot rows and arbitrates the distributed
// lease realised by lockedUntil.
type AutopilotStore interface {
	UpsertEnabled(ctx context.Context, in UpsertAutopilotInput) error
	Disable(ctx context.Context, tokenId TokenId, reason string, txHash string) error
	GetAutopilot(ctx context.Context, tokenId TokenId) (Autopilot, error)
	ListAutopilots(ctx context.Context, opts ListOpts) ([]Autopilot, error)
	ListEnabledTokenIds(ctx context.Context) ([]TokenId, error)
	ListSchedulableTokenIds(ctx context.Context) ([]TokenId, error)
	GetEarliestNextCheckAt(ctx context.Context) (*time.Time, error)
	TryAcquireAutopilotLock(ctx context.Context, tokenId TokenId, leaseMs int64) (bool, error)
	ReleaseAutopilotLock(ctx context.Context, tokenId TokenId) error
	CountActiveAutopilotLocks(ctx context.Context) (int64, error)
}

// StrategyStore persists Strategy rows including cadence and budget state.
type StrategyStore interface {
	GetStrategy(ctx context.Context, tokenId TokenId) (Strategy, error)
	ListStrategies(ctx context.Context, opts ListOpts) ([]Strategy, error)
	UpsertStrategy(ctx context.Context, s Strategy) error
	ClearTradingGoal(ctx context.Context, tokenId TokenId) error
	UpdateNextCheckAt(ctx context.Context, tokenId TokenId, when time.Time) error
	GetNextCheckAt(ctx context.Context, tokenId TokenId) (*time.Time, error)
	RefreshDailyBudget(ctx context.Context, tokenId TokenId, today time.Time) error
	CheckBudget(ctx context.Context, tokenId TokenId, value string) (bool, error)
	ConsumeBudget(ctx context.Context, tokenId TokenId, value string) error
	RecordSuccess(ctx context.Context, tokenId TokenId) error
	RecordFailure(ctx context.Context, tokenId TokenId, reason string) (autoDisabled bool, err error)
}

// RunStore persists the append-only RunRecord log.
type RunStore interface {
	RecordRun(ctx context.Context, chainId int, maxRunRecords int, run RunRecord) error
	ListRuns(ctx context.Context, tokenId TokenId, limit int) ([]RunRecord, error)
}

// MemoryStore persists per-token scrollback and goal bookkeeping.
type MemoryStore interface {
	Recall(ctx context.Context, tokenId TokenId, limit int) ([]MemoryEntry, error)
	Store(ctx context.Context, entry MemoryEntry) error
	UpsertGoal(ctx context.Context, tokenId TokenId, goalId string, entry MemoryEntry) error
	CompleteGoal(ctx context.Context, tokenId TokenId, goalId string) error
	ListGoals(ctx context.Context, tokenId TokenId) ([]MemoryEntry, error)
}

// MarketSignalStore persists independently-ingested market data. Not read
// by the scheduler's hot path; exposed for the sync-loop collaborator.
type MarketSignalStore interface {
	UpsertSignal(ctx context.Context, s MarketSignal) error
	GetSignal(ctx context.Context, chainId int, pair string) (MarketSignal, error)
	ListSignals(ctx context.Context, chainId int) ([]MarketSignal, error)
}

// AuditStore persists an append-only operational log distinct from
// RunRecord (lease transitions, disable/enable, config reloads).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store is the full persistence façade depended on by the scheduler and
// cycle packages.
type Store interface {
	AutopilotStore
	StrategyStore
	RunStore
	MemoryStore
	MarketSignalStore
	AuditStore
}
