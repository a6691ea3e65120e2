package guardrails

import (
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func hasCode(res Result, code string) bool {
	for _, v := range res.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestCheckNoAllowlistsNoRestriction(t *testing.T) {
	d := New(GlobalLimits{})
	res := d.Check(domain.ActionPayload{Target: "0xrouter", Data: "0xabcdef01"}, Context{})
	if !res.OK {
		t.Fatalf("expected no violations with no allowlists configured, got %+v", res.Violations)
	}
}

func TestCheckTargetNotAllowed(t *testing.T) {
	d := New(GlobalLimits{DefaultAllowedTargets: []string{"0xRouter"}})
	res := d.Check(domain.ActionPayload{Target: "0xOther"}, Context{})
	if res.OK || !hasCode(res, "HARD_TARGET_NOT_ALLOWED") {
		t.Fatalf("expected HARD_TARGET_NOT_ALLOWED, got %+v", res.Violations)
	}
}

func TestCheckTargetAllowedCaseInsensitive(t *testing.T) {
	d := New(GlobalLimits{DefaultAllowedTargets: []string{"0xRouter"}})
	res := d.Check(domain.ActionPayload{Target: "0xrouter"}, Context{})
	if !res.OK {
		t.Fatalf("expected case-insensitive match to pass, got %+v", res.Violations)
	}
}

func TestCheckPerStrategyAllowlistOverridesGlobal(t *testing.T) {
	d := New(GlobalLimits{DefaultAllowedTargets: []string{"0xGlobalOnly"}})
	res := d.Check(domain.ActionPayload{Target: "0xStrategyOnly"}, Context{
		AllowedTargets: []string{"0xStrategyOnly"},
	})
	if !res.OK {
		t.Fatalf("expected per-strategy allowlist to override global, got %+v", res.Violations)
	}
}

func TestCheckSelectorNotAllowed(t *testing.T) {
	d := New(GlobalLimits{DefaultAllowedSelectors: []string{"0x12345678"}})
	res := d.Check(domain.ActionPayload{Data: "0xabcdef0100"}, Context{})
	if res.OK || !hasCode(res, "HARD_SELECTOR_NOT_ALLOWED") {
		t.Fatalf("expected HARD_SELECTOR_NOT_ALLOWED, got %+v", res.Violations)
	}
}

func TestCheckSelectorSkippedForShortData(t *testing.T) {
	d := New(GlobalLimits{DefaultAllowedSelectors: []string{"0x12345678"}})
	res := d.Check(domain.ActionPayload{Data: "0x01"}, Context{})
	if !res.OK {
		t.Fatalf("expected plain-transfer payload (no selector) to pass, got %+v", res.Violations)
	}
}

func TestCheckMaxValueExceeded(t *testing.T) {
	d := New(GlobalLimits{MaxValuePerRunWei: "1000"})
	res := d.Check(domain.ActionPayload{}, Context{SpendAmount: "1001"})
	if res.OK || !hasCode(res, "HARD_MAX_VALUE_EXCEEDED") {
		t.Fatalf("expected HARD_MAX_VALUE_EXCEEDED, got %+v", res.Violations)
	}
}

func TestCheckMaxValueWithinLimit(t *testing.T) {
	d := New(GlobalLimits{MaxValuePerRunWei: "1000"})
	res := d.Check(domain.ActionPayload{}, Context{SpendAmount: "999"})
	if !res.OK {
		t.Fatalf("expected spend within limit to pass, got %+v", res.Violations)
	}
}

func TestCheckMaxValuePerStrategyOverride(t *testing.T) {
	d := New(GlobalLimits{MaxValuePerRunWei: "100"})
	res := d.Check(domain.ActionPayload{}, Context{SpendAmount: "500", MaxValuePerRun: "1000"})
	if !res.OK {
		t.Fatalf("expected per-strategy override to relax the global limit, got %+v", res.Violations)
	}
}

func TestCheckSlippageTooHigh(t *testing.T) {
	d := New(GlobalLimits{})
	res := d.Check(domain.ActionPayload{}, Context{AmountIn: "100", MinOut: "40"})
	if res.OK || !hasCode(res, "SOFT_HIGH_SLIPPAGE") {
		t.Fatalf("expected SOFT_HIGH_SLIPPAGE, got %+v", res.Violations)
	}
}

func TestCheckSlippageAcceptable(t *testing.T) {
	d := New(GlobalLimits{})
	res := d.Check(domain.ActionPayload{}, Context{AmountIn: "100", MinOut: "60"})
	if !res.OK {
		t.Fatalf("expected acceptable slippage to pass, got %+v", res.Violations)
	}
}

func TestCheckAccumulatesMultipleViolations(t *testing.T) {
	d := New(GlobalLimits{
		DefaultAllowedTargets: []string{"0xAllowed"},
		MaxValuePerRunWei:     "10",
	})
	res := d.Check(domain.ActionPayload{Target: "0xNotAllowed"}, Context{
		SpendAmount: "20",
		AmountIn:    "100",
		MinOut:      "1",
	})
	if res.OK {
		t.Fatal("expected violations")
	}
	for _, code := range []string{"HARD_TARGET_NOT_ALLOWED", "HARD_MAX_VALUE_EXCEEDED", "SOFT_HIGH_SLIPPAGE"} {
		if !hasCode(res, code) {
			t.Errorf("expected violation %s among %+v", code, res.Violations)
		}
	}
}
