package domain

import "time"

// ReputationBaseline is the reputation a participant starts with on first use.
const ReputationBaseline = 700

// ReputationFloor and ReputationCeiling clamp every reputation update.
const (
	ReputationFloor   = 0
	ReputationCeiling = 1000
)

// Participant is the owned per-identity record. It is never contended across
// users: only the owning identity mutates it directly, and only the
// settlement engine mutates it as part of settlement. Non-transferable.
type Participant struct {
	Address    string // identity, a secp256k1 address on the underlying ledger
	Reputation int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Tier is the privilege level derived from reputation. It is never stored;
// always recompute it from reputation so the two cannot drift.
type Tier string

const (
	TierNew    Tier = "new"
	TierProven Tier = "proven"
	TierElite  Tier = "elite"
)
