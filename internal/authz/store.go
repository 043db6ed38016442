package authz

import (
	"context"
	"time"
)

// CacheEntry is a memoized decision plus the instant it was computed.
type CacheEntry struct {
	Decision Decision  `json:"decision"`
	StoredAt time.Time `json:"stored_at"`
}

// DecisionCache memoizes decisions for identical, still-valid inputs.
// Implementations must support concurrent reads and writes without
// serializing the evaluation pipeline behind a single lock. Get returns
// sentinel.ErrNotFound on a miss or an expired entry.
//
// The service computes the TTL: it never exceeds the remaining validity of
// any time-bound input the decision consulted, so a stale entry can simply
// be dropped rather than revalidated.
type DecisionCache interface {
	Get(ctx context.Context, key string) (CacheEntry, error)
	Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error
}
