package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veridict/veridict/internal/domain"
)

// VerdictCache implements domain.VerdictCache. Entries have no TTL: a
// verdict, once obtained, must never be re-queried, because independent
// oracle calls are not guaranteed to return the same answer. The persisted
// market row is the durable copy; this cache is the fast path for retries.
type VerdictCache struct {
	rdb *redis.Client
}

// NewVerdictCache creates a VerdictCache backed by the given Client.
func NewVerdictCache(c *Client) *VerdictCache {
	return &VerdictCache{rdb: c.Underlying()}
}

func verdictKey(marketID string) string { return "verdict:" + marketID }

// Set records the obtained verdict for a market.
func (vc *VerdictCache) Set(ctx context.Context, marketID string, verdict bool) error {
	val := "NO"
	if verdict {
		val = "YES"
	}
	if err := vc.rdb.Set(ctx, verdictKey(marketID), val, 0).Err(); err != nil {
		return fmt.Errorf("redis: set verdict %s: %w", marketID, err)
	}
	return nil
}

// Get returns the cached verdict, or domain.ErrNotFound when the oracle has
// not answered for this market yet.
func (vc *VerdictCache) Get(ctx context.Context, marketID string) (bool, error) {
	val, err := vc.rdb.Get(ctx, verdictKey(marketID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("redis: get verdict %s: %w", marketID, err)
	}
	switch val {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	default:
		return false, fmt.Errorf("redis: verdict %s: unexpected value %q", marketID, val)
	}
}

// Compile-time interface check.
var _ domain.VerdictCache = (*VerdictCache)(nil)
