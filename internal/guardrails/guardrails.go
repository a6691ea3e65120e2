// Package guardrails implements the post-encode safety policy check run
// against every non-read-only action before it is submitted on-chain.
package guardrails

import (
	"strings"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/shopspring/decimal"
)

// Violation is a single policy failure. Codes beginning with SOFT_ or
// HARD_ are elevated into RunRecord.violationCode by the scheduler when it
// records the blocked run.
type Violation struct {
	Message string
	Code    string
}

// Result is the outcome of Check.
type Result struct {
	OK         bool
	Violations []Violation
}

// Context carries everything Check needs, assembled by the cycle from the
// agent, the strategy, and the encoded payload.
type Context struct {
	TokenId       domain.TokenId
	AgentType     string
	Vault         string
	Timestamp     time.Time
	ActionName    string
	SpendAmount   string // uint256 decimal string
	ActionTokens  []string
	AmountIn      string
	MinOut        string

	AllowedTargets   []string
	AllowedSelectors []string
	MaxValuePerRun   string // uint256 decimal string; "" means no override
}

// GlobalLimits holds the process-wide defaults layered beneath any
// per-strategy override.
type GlobalLimits struct {
	MaxValuePerRunWei       string
	DefaultAllowedTargets   []string
	DefaultAllowedSelectors []string
}

// Dispatcher runs the fixed policy set against an encoded payload.
type Dispatcher struct {
	global GlobalLimits
}

// New creates a Dispatcher seeded with the global defaults.
func New(global GlobalLimits) *Dispatcher {
	return &Dispatcher{global: global}
}

// Check evaluates payload against context and returns every violation
// found; callers treat a non-empty Violations slice as "do not submit".
func (d *Dispatcher) Check(payload domain.ActionPayload, rc Context) Result {
	var violations []Violation

	if v := d.checkTargetAllowed(payload, rc); v != nil {
		violations = append(violations, *v)
	}
	if v := d.checkSelectorAllowed(payload, rc); v != nil {
		violations = append(violations, *v)
	}
	if v := d.checkMaxValue(rc); v != nil {
		violations = append(violations, *v)
	}
	if v := checkSlippage(rc); v != nil {
		violations = append(violations, *v)
	}

	return Result{OK: len(violations) == 0, Violations: violations}
}

func (d *Dispatcher) checkTargetAllowed(payload domain.ActionPayload, rc Context) *Violation {
	allowed := rc.AllowedTargets
	if len(allowed) == 0 {
		allowed = d.global.DefaultAllowedTargets
	}
	if len(allowed) == 0 {
		return nil // no allowlist configured: no restriction
	}
	target := strings.ToLower(payload.Target)
	for _, a := range allowed {
		if strings.ToLower(a) == target {
			return nil
		}
	}
	return &Violation{
		Message: "target " + payload.Target + " is not on the allowed target list",
		Code:    "HARD_TARGET_NOT_ALLOWED",
	}
}

func (d *Dispatcher) checkSelectorAllowed(payload domain.ActionPayload, rc Context) *Violation {
	allowed := rc.AllowedSelectors
	if len(allowed) == 0 {
		allowed = d.global.DefaultAllowedSelectors
	}
	if len(allowed) == 0 {
		return nil
	}
	if len(payload.Data) < 10 {
		return nil // no selector to check (plain transfer)
	}
	selector := strings.ToLower(payload.Data[:10])
	for _, a := range allowed {
		if strings.ToLower(a) == selector {
			return nil
		}
	}
	return &Violation{
		Message: "selector " + selector + " is not on the allowed selector list",
		Code:    "HARD_SELECTOR_NOT_ALLOWED",
	}
}

func (d *Dispatcher) checkMaxValue(rc Context) *Violation {
	limitStr := rc.MaxValuePerRun
	if limitStr == "" {
		limitStr = d.global.MaxValuePerRunWei
	}
	if limitStr == "" || rc.SpendAmount == "" {
		return nil
	}
	limit, err := decimal.NewFromString(limitStr)
	if err != nil {
		return nil
	}
	spend, err := decimal.NewFromString(rc.SpendAmount)
	if err != nil {
		return nil
	}
	if spend.GreaterThan(limit) {
		return &Violation{
			Message: "spend amount " + spend.String() + " exceeds max value per run " + limit.String(),
			Code:    "HARD_MAX_VALUE_EXCEEDED",
		}
	}
	return nil
}

// checkSlippage flags a swap whose minOut is implausibly low relative to
// amountIn (more than 50% slippage tolerance). The SOFT_ code marks it as a
// heuristic, since legitimate low-liquidity swaps can look this way; like
// every violation it still fails Check, so the cycle blocks the action.
func checkSlippage(rc Context) *Violation {
	if rc.AmountIn == "" || rc.MinOut == "" {
		return nil
	}
	amountIn, err := decimal.NewFromString(rc.AmountIn)
	if err != nil || amountIn.IsZero() {
		return nil
	}
	minOut, err := decimal.NewFromString(rc.MinOut)
	if err != nil {
		return nil
	}
	ratio := minOut.Div(amountIn)
	if ratio.LessThan(decimal.NewFromFloat(0.5)) {
		return &Violation{
			Message: "minOut/amountIn ratio " + ratio.StringFixed(4) + " implies over 50% slippage tolerance",
			Code:    "SOFT_HIGH_SLIPPAGE",
		}
	}
	return nil
}
