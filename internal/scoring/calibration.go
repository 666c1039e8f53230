package scoring

import (
	"math"

	"github.com/veridict/veridict/internal/domain"
)

// LearningRate scales reputation deltas. With k=40 the extremes are:
// correct at 90 → +10, wrong at 90 → -22, anything at 50 → 0.
const LearningRate = 40.0

// ReputationDelta applies the proper scoring rule for one resolved
// prediction. Let p be the stated probability of the chosen side and o=1 when
// that side was correct; the Brier penalty is (p-o)^2 and the delta is
//
//	delta = round(k * (0.25 - (p-o)^2))
//
// 0.25 is the Brier penalty of a 50% statement, so a participant who always
// says 50% moves exactly zero in either direction (zero drift for an
// uninformative participant). Correct deltas grow with confidence, wrong
// deltas shrink (more negative) with confidence, and at equal confidence the
// penalty for being wrong exceeds the reward for being right.
func ReputationDelta(confidence int, correct bool) int {
	p := float64(confidence) / 100.0
	o := 0.0
	if correct {
		o = 1.0
	}
	brier := (p - o) * (p - o)
	return int(math.Round(LearningRate * (0.25 - brier)))
}

// ApplyDelta adds delta to reputation and clamps to the permitted range.
func ApplyDelta(reputation, delta int) int {
	r := reputation + delta
	if r < domain.ReputationFloor {
		return domain.ReputationFloor
	}
	if r > domain.ReputationCeiling {
		return domain.ReputationCeiling
	}
	return r
}
