package scoring

import "github.com/veridict/veridict/internal/domain"

// Tier thresholds. Reputation below provenThreshold is New, below
// eliteThreshold is Proven, otherwise Elite.
const (
	provenThreshold = 750
	eliteThreshold  = 900
)

// TierOf derives the privilege tier from reputation. Tiers are never stored;
// two participants with equal reputation always land in the same tier
// regardless of how they got there.
func TierOf(reputation int) domain.Tier {
	switch {
	case reputation >= eliteThreshold:
		return domain.TierElite
	case reputation >= provenThreshold:
		return domain.TierProven
	default:
		return domain.TierNew
	}
}

// ConfidenceCap returns the maximum confidence a participant with the given
// reputation may state.
func ConfidenceCap(reputation int) int {
	switch TierOf(reputation) {
	case domain.TierElite:
		return 90
	case domain.TierProven:
		return 80
	default:
		return 70
	}
}
