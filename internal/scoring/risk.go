// Package scoring holds the pure market arithmetic: the risk function that
// maps stake and stated confidence to the amount actually at hazard, the
// Brier-based reputation update, and the tier step function. Submission
// validation and settlement both call into this package so the two can never
// drift apart.
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Confidence bounds. 50 carries zero risk; 90 puts the whole stake at hazard.
const (
	MinConfidence = 50
	MaxConfidence = 90
)

var ErrConfidenceOutOfRange = errors.New("scoring: confidence out of range")

var hundred = decimal.NewFromInt(100)

// Risk returns the at-risk portion of stake for the given confidence:
//
//	risk = stake * (2*confidence - 100) / 100
//
// Confidence must lie in [MinConfidence, MaxConfidence]; per-tier caps are
// the caller's concern (see ConfidenceCap).
func Risk(stake decimal.Decimal, confidence int) (decimal.Decimal, error) {
	if confidence < MinConfidence || confidence > MaxConfidence {
		return decimal.Zero, fmt.Errorf("%w: %d not in [%d,%d]",
			ErrConfidenceOutOfRange, confidence, MinConfidence, MaxConfidence)
	}
	num := decimal.NewFromInt(int64(2*confidence - 100))
	return stake.Mul(num).Div(hundred), nil
}
