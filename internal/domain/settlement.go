package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParticipantSettlement is the computed per-participant effect of resolving
// one market: the prediction fill-in plus the reputation transition.
type ParticipantSettlement struct {
	Address    string
	Side       Side
	Confidence int
	Stake      decimal.Decimal
	Risk       decimal.Decimal
	Correct    bool

	Payout     decimal.Decimal // winners: stake + loser-pool share; losers: stake - risk
	ProfitLoss decimal.Decimal // payout - stake

	ReputationBefore int
	ReputationDelta  int
	ReputationAfter  int
}

// Settlement is the full, self-contained result of settling a market. It is
// computed purely from the final market record and its predictions, then
// applied to the ledger as one atomic unit.
type Settlement struct {
	MarketID string
	Outcome  bool

	Participants []ParticipantSettlement

	LoserPool       decimal.Decimal
	WinnerRiskTotal decimal.Decimal
	// RetainedPool is the loser pool kept by the system when no prediction
	// was correct (or no predictions exist). Zero otherwise.
	RetainedPool decimal.Decimal

	ComputedAt time.Time
}

// Winners returns the settlements for participants on the winning side.
func (s Settlement) Winners() []ParticipantSettlement {
	var out []ParticipantSettlement
	for _, p := range s.Participants {
		if p.Correct {
			out = append(out, p)
		}
	}
	return out
}

// PayoutTotal sums the payouts of every participant, winners and losers.
func (s Settlement) PayoutTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Participants {
		total = total.Add(p.Payout)
	}
	return total
}
