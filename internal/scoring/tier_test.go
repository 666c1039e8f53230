package scoring

import (
	"testing"

	"github.com/veridict/veridict/internal/domain"
)

func TestTierOf_Thresholds(t *testing.T) {
	tests := []struct {
		reputation int
		want       domain.Tier
	}{
		{0, domain.TierNew},
		{700, domain.TierNew},
		{749, domain.TierNew},
		{750, domain.TierProven},
		{899, domain.TierProven},
		{900, domain.TierElite},
		{1000, domain.TierElite},
	}
	for _, tt := range tests {
		if got := TierOf(tt.reputation); got != tt.want {
			t.Errorf("TierOf(%d) = %s, want %s", tt.reputation, got, tt.want)
		}
	}
}

func TestConfidenceCap_PerTier(t *testing.T) {
	tests := []struct {
		reputation int
		want       int
	}{
		{0, 70},
		{700, 70},
		{750, 80},
		{899, 80},
		{900, 90},
		{1000, 90},
	}
	for _, tt := range tests {
		if got := ConfidenceCap(tt.reputation); got != tt.want {
			t.Errorf("ConfidenceCap(%d) = %d, want %d", tt.reputation, got, tt.want)
		}
	}
}

// The cap is a pure function of reputation: equal reputation means equal cap,
// independent of any history that produced it.
func TestConfidenceCap_HistoryIndependent(t *testing.T) {
	repA := ApplyDelta(ApplyDelta(700, ReputationDelta(70, true)), ReputationDelta(60, true))
	repB := ApplyDelta(ApplyDelta(700, ReputationDelta(60, true)), ReputationDelta(70, true))
	if repA != repB {
		t.Fatalf("delta application should commute: %d vs %d", repA, repB)
	}
	if ConfidenceCap(repA) != ConfidenceCap(repB) {
		t.Errorf("identical reputation produced different caps")
	}
}
