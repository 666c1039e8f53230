package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the binary side of a prediction.
type Side bool

const (
	SideYes Side = true
	SideNo  Side = false
)

// String returns "YES" or "NO".
func (s Side) String() string {
	if bool(s) {
		return "YES"
	}
	return "NO"
}

// Prediction is one participant's position on one market. At most one exists
// per (participant, market) pair, enforced by the store. Rows are immutable
// after creation except for the settlement fields, which are filled exactly
// once when the market resolves. The full set of a participant's predictions
// is their append-only history.
type Prediction struct {
	MarketID   string
	Address    string
	Side       Side
	Confidence int // percent, [50,90], additionally capped by tier at submission
	Stake      decimal.Decimal
	Risk       decimal.Decimal

	// Settlement fill-in. Nil/zero until the market resolves.
	Outcome         *bool
	Correct         *bool
	Payout          decimal.Decimal // winners: stake + loser-pool share; losers: stake - risk
	ProfitLoss      decimal.Decimal // payout - stake
	ReputationDelta int

	CreatedAt time.Time
	SettledAt *time.Time
}

// Settled reports whether the prediction has been consumed by settlement.
func (p Prediction) Settled() bool {
	return p.SettledAt != nil
}
