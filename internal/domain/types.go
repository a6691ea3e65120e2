package domain

import "time"

// TokenId identifies an agent instance on a chain. It is the primary key
// used throughout the scheduler, store, and cycle packages.
type TokenId int64

// SubscriptionStatus is the billing/access state of an agent instance as
// reported by the chain client.
type SubscriptionStatus string

const (
	SubscriptionNone         SubscriptionStatus = "none"
	SubscriptionActive       SubscriptionStatus = "active"
	SubscriptionGracePeriod  SubscriptionStatus = "grace_period"
	SubscriptionExpired      SubscriptionStatus = "expired"
	SubscriptionCanceled     SubscriptionStatus = "canceled"
)

// RunMode distinguishes a real submission from a recorded dry-run.
type RunMode string

const (
	RunModePrimary RunMode = "primary"
	RunModeShadow  RunMode = "shadow"
)

// Autopilot is the per-(chain,token) enablement and lease record.
type Autopilot struct {
	TokenId        TokenId
	Renter         string
	Operator       string
	PermitExpires  *time.Time
	PermitDeadline *time.Time
	Sig            string
	Enabled        bool
	LastReason     string
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the lease held in LockedUntil is no longer valid
// at instant now.
func (a Autopilot) Expired(now time.Time) bool {
	return a.LockedUntil == nil || !a.LockedUntil.After(now)
}

// GoalSnapshot is one entry in a strategy's goalHistory: a trading goal that
// was active and then cleared (completed, replaced, or abandoned).
type GoalSnapshot struct {
	Goal      string    `json:"goal"`
	SetAt     time.Time `json:"setAt"`
	ClearedAt time.Time `json:"clearedAt"`
}

// StrategyParams is the discriminated subset of the free-form strategy
// params map that the cycle and scheduler reason about directly. Arbitrary
// extra keys are preserved and passed through to the brain untouched.
type StrategyParams struct {
	TradingGoal      string         `json:"tradingGoal,omitempty"`
	GoalSetAt        *time.Time     `json:"goalSetAt,omitempty"`
	GoalHistory      []GoalSnapshot `json:"goalHistory,omitempty"`
	AllowedTargets   []string       `json:"allowedTargets,omitempty"`
	AllowedSelectors []string       `json:"allowedSelectors,omitempty"`
	MaxValuePerRun   string         `json:"maxValuePerRun,omitempty"`
	Extra            map[string]any `json:"-"`
}

// Strategy is the per-(chain,token) configuration of what an agent
// instance should try to do.
type Strategy struct {
	TokenId               TokenId
	StrategyType          string
	Target                string
	Data                  string
	Value                 string
	Params                StrategyParams
	MinIntervalMs         int64
	RequirePositiveBalance bool
	MaxFailures           int
	FailureCount          int
	BudgetDay             time.Time
	DailyRunsUsed         int
	DailyValueUsed        string
	Enabled               bool
	LastRunAt             *time.Time
	NextCheckAt           *time.Time
	LastError             string
}

// IsLLM reports whether the strategy type is one of the free-text-goal
// driven LLM strategies (the "llm_" family named in the standby gate).
func (s Strategy) IsLLM() bool {
	return len(s.StrategyType) >= 4 && s.StrategyType[:4] == "llm_"
}

// ExecutionTraceEntry is one stage in a RunRecord's executionTrace.
type ExecutionTraceEntry struct {
	Stage  string         `json:"stage"`
	Status string         `json:"status"`
	At     time.Time      `json:"at"`
	Note   string         `json:"note,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ShadowComparison records how a shadow-mode decision would have differed
// from the primary submission path, when both are evaluated.
type ShadowComparison struct {
	WouldAct    bool   `json:"wouldAct"`
	WouldBlock  bool   `json:"wouldBlock"`
	Divergence  string `json:"divergence,omitempty"`
}

// RunRecord is the append-only log of a single cognitive cycle's outcome.
type RunRecord struct {
	ID               string
	TokenId          TokenId
	ActionType       string
	ActionHash       string
	SimulateOk       bool
	TxHash           string
	Error            string
	ErrorCode        string
	FailureCategory  string
	ExecutionTrace   []ExecutionTraceEntry
	RunMode          RunMode
	ShadowCompare    *ShadowComparison
	BrainType        string
	IntentType       string
	DecisionReason   string
	DecisionMessage  string
	ViolationCode    string
	GasUsed          uint64
	PnLUsd           float64
	CreatedAt        time.Time
}

// MemoryType enumerates the families of MemoryEntry.
type MemoryType string

const (
	MemoryDecision    MemoryType = "decision"
	MemoryObservation MemoryType = "observation"
	MemoryExecution   MemoryType = "execution"
	MemoryBlocked     MemoryType = "blocked"
	MemoryGoal        MemoryType = "goal"
	MemoryTrigger     MemoryType = "trigger"
)

// MemoryResult is the outcome attached to an execution/blocked memory entry.
type MemoryResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MemoryEntry is one row of a token's scrollback.
type MemoryEntry struct {
	ID        string
	TokenId   TokenId
	Type      MemoryType
	Action    string
	Params    map[string]any
	Result    *MemoryResult
	Reasoning string
	GoalId    string
	Timestamp time.Time
}

// MarketSignal is an observed market datum ingested off the hot path of the
// scheduler (e.g. by an external collaborator). It is stored and queried
// through the Store façade but never read inside runSingleToken.
type MarketSignal struct {
	ChainId   int
	Pair      string
	Price     string
	Volume    string
	ObservedAt time.Time
}

// AgentTokenExpiration pairs an address with its on-chain expiration.
type AgentTokenExpiration struct {
	Address   string
	ExpiresAt time.Time
}

// Observation is the transient snapshot returned by the chain client at the
// top of each cycle.
type Observation struct {
	TokenId      TokenId
	Status       map[string]any
	Vault        string
	Renter       AgentTokenExpiration
	Operator     AgentTokenExpiration
	BlockNumber  uint64
	BlockTime    time.Time
	ObservedAt   time.Time
	VaultTokens  []string
	NativeBalance string
	Prices       map[string]string
	GasPriceWei  string
	Paused       bool
	InstanceConfig map[string]any
}

// Decision is what a Brain produces for a single cycle.
type Decision struct {
	Action       string         `json:"action"`
	Params       map[string]any `json:"params"`
	Reasoning    string         `json:"reasoning"`
	Message      string         `json:"message,omitempty"`
	Confidence   float64        `json:"confidence"`
	Done         *bool          `json:"done,omitempty"`
	NextCheckMs  *int64         `json:"nextCheckMs,omitempty"`
	Blocked      *bool          `json:"blocked,omitempty"`
	BlockReason  string         `json:"blockReason,omitempty"`
}

// IsWait reports whether the decision is the well-known no-op action.
func (d Decision) IsWait() bool { return d.Action == "wait" || d.Action == "" }

// IsDone reports whether Done was explicitly set to true.
func (d Decision) IsDone() bool { return d.Done != nil && *d.Done }

// IsBlocked reports whether Blocked was explicitly set to true.
func (d Decision) IsBlocked() bool { return d.Blocked != nil && *d.Blocked }

// ActionPayload is a single on-chain call triple.
type ActionPayload struct {
	Target string `json:"target"`
	Value  string `json:"value"`
	Data   string `json:"data"`
}

// ActionPayloads is an ordered batch of payloads returned by an action's
// encoder. A length-1 batch and a bare ActionPayload are equivalent on the
// wire; the scheduler always works with this slice form internally.
type ActionPayloads []ActionPayload

// Last returns the final payload in the batch, which is the one used to
// compute actionHash.
func (p ActionPayloads) Last() (ActionPayload, bool) {
	if len(p) == 0 {
		return ActionPayload{}, false
	}
	return p[len(p)-1], true
}

// ExecuteResult is the outcome of submitting a payload or batch on-chain.
type ExecuteResult struct {
	Hash          string
	ReceiptStatus uint64
	ReceiptBlock  uint64
	GasUsed       uint64
}
