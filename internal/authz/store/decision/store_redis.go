package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsgate/internal/authz"
	"opsgate/pkg/platform/sentinel"
)

const decisionKeyPrefix = "authz:decision:"

// RedisStore is a Redis-backed authz.DecisionCache for deployments where
// multiple instances should share memoized decisions. Expiry is delegated
// to Redis TTLs; entries are stored as JSON.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed decision cache.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the cached entry for key. Misses and expired keys map to
// sentinel.ErrNotFound; transport failures surface as errors so the caller
// can fall back to recomputation.
func (s *RedisStore) Get(ctx context.Context, key string) (authz.CacheEntry, error) {
	raw, err := s.client.Get(ctx, decisionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return authz.CacheEntry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return authz.CacheEntry{}, fmt.Errorf("redis get: %w", err)
	}

	var entry authz.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is as good as a miss.
		return authz.CacheEntry{}, sentinel.ErrNotFound
	}
	rehydrate(&entry.Decision)
	return entry, nil
}

// rehydrate restores the in-process value types the JSON round-trip widens:
// string lists come back as []any, ints as float64, and string maps as
// map[string]any. Without it a Redis hit is not interchangeable with the
// in-memory store's copy of the same decision.
func rehydrate(d *authz.Decision) {
	for k, v := range d.Obligations {
		if list, ok := stringSlice(v); ok {
			d.Obligations[k] = list
		}
	}
	if v, ok := d.Metadata[authz.MetaRiskScore].(float64); ok {
		d.Metadata[authz.MetaRiskScore] = int(v)
	}
	if m, ok := d.Metadata[authz.MetaAuditFields].(map[string]any); ok {
		fields := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		d.Metadata[authz.MetaAuditFields] = fields
	}
}

func stringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Set stores entry under key with the given TTL via SETEX.
func (s *RedisStore) Set(ctx context.Context, key string, entry authz.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, decisionKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
