package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle state of a market. Transitions only move
// forward; "resolved" is terminal.
type MarketStatus string

const (
	// MarketStatusCreated is the initial state after a market-created signal.
	MarketStatusCreated MarketStatus = "created"
	// MarketStatusAwaitingDeadline means the market accepts predictions.
	MarketStatusAwaitingDeadline MarketStatus = "awaiting_deadline"
	// MarketStatusLocked means the deadline passed (or the authority locked
	// the market early); no further predictions are accepted.
	MarketStatusLocked MarketStatus = "locked"
	// MarketStatusVerdictPending means the pipeline is querying the oracle.
	MarketStatusVerdictPending MarketStatus = "verdict_pending"
	// MarketStatusSettling means a verdict has been obtained and persisted;
	// the settlement transaction has not committed yet.
	MarketStatusSettling MarketStatus = "settling"
	// MarketStatusResolved is terminal: outcome set, payouts and reputation
	// deltas applied.
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is the shared per-market ledger record. It is the only record
// contended across participants; every accepted prediction mutates it
// together with the submitter's own prediction row.
type Market struct {
	ID        string
	Question  string
	Deadline  time.Time
	Authority string // identity permitted to lock/force-resolve early

	YesRiskTotal decimal.Decimal
	NoRiskTotal  decimal.Decimal
	YesCount     int
	NoCount      int

	Status  MarketStatus
	Verdict *bool // persisted oracle answer, set before settlement commits
	Outcome *bool // set exactly once, when the market resolves

	RetainedPool decimal.Decimal // loser pool kept by the system when no winner exists

	CreatedAt  time.Time
	LockedAt   *time.Time
	ResolvedAt *time.Time
	UpdatedAt  time.Time
}

// Locked reports whether the market no longer accepts predictions.
func (m Market) Locked() bool {
	switch m.Status {
	case MarketStatusLocked, MarketStatusVerdictPending, MarketStatusSettling, MarketStatusResolved:
		return true
	}
	return false
}

// Resolved reports whether the market reached its terminal state.
func (m Market) Resolved() bool {
	return m.Status == MarketStatusResolved
}

// Open reports whether the market currently accepts predictions.
func (m Market) Open(now time.Time) bool {
	return !m.Locked() && now.Before(m.Deadline)
}

// RiskTotal returns the combined at-risk amount across both sides.
func (m Market) RiskTotal() decimal.Decimal {
	return m.YesRiskTotal.Add(m.NoRiskTotal)
}
