package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market record lookups for the read path.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// VerdictCache stores obtained oracle verdicts so a retried resolution never
// asks the oracle twice for the same market. Entries are written before the
// settlement transaction and have no expiry.
type VerdictCache interface {
	Set(ctx context.Context, marketID string, verdict bool) error
	// Get returns ErrNotFound when no verdict has been cached.
	Get(ctx context.Context, marketID string) (bool, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking, used to keep resolution of one
// market mutually exclusive across pipeline instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. The resolution pipeline
// subscribes to market lifecycle events through it, and settled state is
// broadcast to presentation consumers the same way.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
