package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists the shared market ledger records.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// ListDue returns unlocked markets whose deadline is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Market, error)
	// ListUnresolved returns markets that are locked but not yet resolved,
	// in any intermediate pipeline state. Used to resume after a restart.
	ListUnresolved(ctx context.Context) ([]Market, error)
	// TransitionStatus moves a market from one status to another. It returns
	// ErrNotFound if no market exists in the from status with this id, and
	// ErrAlreadyResolved if the market has already resolved.
	TransitionStatus(ctx context.Context, id string, from, to MarketStatus) error
	// Lock marks the market locked (deadline reached or authority override).
	Lock(ctx context.Context, id string, at time.Time) error
	// SetVerdict persists the obtained oracle verdict while moving the
	// market from verdict_pending to settling. Idempotent for an identical
	// verdict already persisted.
	SetVerdict(ctx context.Context, id string, verdict bool) error
	Count(ctx context.Context) (int64, error)
}

// ParticipantStore persists the owned per-identity records.
type ParticipantStore interface {
	// Ensure returns the participant for the address, creating it with the
	// baseline reputation on first use.
	Ensure(ctx context.Context, address string) (Participant, error)
	GetByAddress(ctx context.Context, address string) (Participant, error)
	Leaderboard(ctx context.Context, limit int) ([]Participant, error)
}

// PredictionStore persists predictions. Uniqueness per (market, address) is
// enforced by the store; a duplicate insert returns ErrAlreadyExists.
type PredictionStore interface {
	// Submit inserts the prediction and increments the market's side risk
	// total and count in the same transaction, failing with ErrMarketLocked
	// if the market no longer accepts predictions.
	Submit(ctx context.Context, p Prediction) error
	Get(ctx context.Context, marketID, address string) (Prediction, error)
	ListByMarket(ctx context.Context, marketID string) ([]Prediction, error)
	ListByAddress(ctx context.Context, address string, opts ListOpts) ([]Prediction, error)
}

// SettlementStore applies a computed settlement to the ledger as a single
// atomic transaction: market resolution, every prediction fill-in, every
// reputation update, and the audit entry all commit together or not at all.
type SettlementStore interface {
	// Apply commits the settlement. If the market is already resolved it
	// returns ErrAlreadyResolved without touching any record, which callers
	// treat as an idempotent success.
	Apply(ctx context.Context, s Settlement) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RiskTotals is a read-model convenience for UI-facing estimates.
type RiskTotals struct {
	YesRisk decimal.Decimal
	NoRisk  decimal.Decimal
}
