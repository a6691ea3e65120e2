package brain

import (
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func TestApplyCadenceFilterOnceWordLeavesDecisionAlone(t *testing.T) {
	done := true
	d := domain.Decision{Action: "swap", Done: &done}
	got := applyCadenceFilter(d, "do a single trade of 100 USDC then stop")
	if got.NextCheckMs != nil {
		t.Fatalf("expected a one-shot goal to leave NextCheckMs untouched, got %v", got.NextCheckMs)
	}
}

func TestApplyCadenceFilterEveryNUnits(t *testing.T) {
	d := domain.Decision{Action: "swap"}
	got := applyCadenceFilter(d, "rebalance every 15 minutes")
	if got.NextCheckMs == nil || *got.NextCheckMs != 15*60*1000 {
		t.Fatalf("expected a 15 minute hint, got %v", got.NextCheckMs)
	}
	if got.IsDone() {
		t.Fatal("expected a recurring cadence to not be done")
	}
}

func TestApplyCadenceFilterRecurringWordDefaultsToHourly(t *testing.T) {
	d := domain.Decision{Action: "wait"}
	got := applyCadenceFilter(d, "DCA into WETH daily")
	if got.NextCheckMs == nil || *got.NextCheckMs != 60*60*1000 {
		t.Fatalf("expected default hourly hint, got %v", got.NextCheckMs)
	}
}

func TestApplyCadenceFilterRecurringWordKeepsExistingHint(t *testing.T) {
	hint := int64(5000)
	d := domain.Decision{Action: "wait", NextCheckMs: &hint}
	got := applyCadenceFilter(d, "keep buying the dip continuously")
	if got.NextCheckMs == nil || *got.NextCheckMs != 5000 {
		t.Fatalf("expected the existing hint to be preserved, got %v", got.NextCheckMs)
	}
}

func TestApplyCadenceFilterNoMatchLeavesDecisionUnchanged(t *testing.T) {
	d := domain.Decision{Action: "wait"}
	got := applyCadenceFilter(d, "buy 100 USDC worth of WETH")
	if got.NextCheckMs != nil || got.Done != nil {
		t.Fatalf("expected no cadence hint for a plain goal, got %+v", got)
	}
}
