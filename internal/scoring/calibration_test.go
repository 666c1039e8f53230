package scoring

import (
	"testing"

	"github.com/veridict/veridict/internal/domain"
)

func TestReputationDelta_ZeroAtFifty(t *testing.T) {
	if got := ReputationDelta(50, true); got != 0 {
		t.Errorf("correct at 50%% should give 0, got %d", got)
	}
	if got := ReputationDelta(50, false); got != 0 {
		t.Errorf("wrong at 50%% should give 0, got %d", got)
	}
}

func TestReputationDelta_CorrectGrowsWithConfidence(t *testing.T) {
	prev := -1
	for c := MinConfidence; c <= MaxConfidence; c++ {
		got := ReputationDelta(c, true)
		if got < prev {
			t.Errorf("correct delta fell at confidence %d: %d < %d", c, got, prev)
		}
		if c > MinConfidence && got < 0 {
			t.Errorf("correct delta negative at confidence %d: %d", c, got)
		}
		prev = got
	}
}

func TestReputationDelta_WrongShrinksWithConfidence(t *testing.T) {
	prev := 1
	for c := MinConfidence; c <= MaxConfidence; c++ {
		got := ReputationDelta(c, false)
		if got > prev {
			t.Errorf("wrong delta rose at confidence %d: %d > %d", c, got, prev)
		}
		if c > MinConfidence && got >= 0 {
			t.Errorf("wrong delta non-negative at confidence %d: %d", c, got)
		}
		prev = got
	}
}

func TestReputationDelta_WrongCostsMoreThanRightPays(t *testing.T) {
	for c := MinConfidence + 1; c <= MaxConfidence; c++ {
		gain := ReputationDelta(c, true)
		loss := -ReputationDelta(c, false)
		if loss <= gain {
			t.Errorf("confidence %d: loss %d should exceed gain %d", c, loss, gain)
		}
	}
}

func TestApplyDelta_Clamps(t *testing.T) {
	if got := ApplyDelta(5, -100); got != domain.ReputationFloor {
		t.Errorf("expected floor %d, got %d", domain.ReputationFloor, got)
	}
	if got := ApplyDelta(995, 100); got != domain.ReputationCeiling {
		t.Errorf("expected ceiling %d, got %d", domain.ReputationCeiling, got)
	}
	if got := ApplyDelta(700, 10); got != 710 {
		t.Errorf("expected 710, got %d", got)
	}
}

// An uninformative participant (always 50%) must not drift at all, no matter
// how their outcomes fall.
func TestCalibration_UninformativeParticipantStable(t *testing.T) {
	rep := domain.ReputationBaseline
	for i := 0; i < 1000; i++ {
		rep = ApplyDelta(rep, ReputationDelta(50, i%2 == 0))
	}
	if rep != domain.ReputationBaseline {
		t.Errorf("50%%-always reputation drifted from %d to %d",
			domain.ReputationBaseline, rep)
	}
}

// A calibrated participant whose stated confidence matches their empirical
// accuracy gains on net and settles at a stable fixed point.
func TestCalibration_CalibratedParticipantConverges(t *testing.T) {
	const confidence = 70
	rep := domain.ReputationBaseline

	// 7 of every 10 predictions correct, matching the stated 70%.
	var history []int
	for i := 0; i < 2000; i++ {
		correct := i%10 < 7
		rep = ApplyDelta(rep, ReputationDelta(confidence, correct))
		history = append(history, rep)
	}

	// Expected per-round drift is positive (k*(0.25 - q(1-q)) > 0 for
	// q != 0.5), so the clamp ceiling is the fixed point.
	if rep != domain.ReputationCeiling {
		t.Fatalf("calibrated reputation should converge to the ceiling, got %d", rep)
	}
	for _, r := range history[len(history)-50:] {
		if r != domain.ReputationCeiling {
			t.Errorf("reputation left its fixed point: %d", r)
			break
		}
	}
}
