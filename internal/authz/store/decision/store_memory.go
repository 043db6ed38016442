package decision

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"opsgate/internal/authz"
	"opsgate/pkg/platform/sentinel"
)

const shardCount = 32

// InMemoryStore implements authz.DecisionCache with sharded maps so that
// concurrent evaluations do not serialize behind a single lock. Expired
// entries are dropped lazily on read and swept opportunistically on write.
type InMemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]storedEntry
}

type storedEntry struct {
	entry     authz.CacheEntry
	expiresAt time.Time
}

// NewInMemoryStore creates an empty sharded decision cache.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]storedEntry)}
	}
	return s
}

// WithClock pins the store's clock (tests).
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the cached entry for key, or sentinel.ErrNotFound when the
// key is absent or its TTL has elapsed.
func (s *InMemoryStore) Get(ctx context.Context, key string) (authz.CacheEntry, error) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	stored, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		return authz.CacheEntry{}, sentinel.ErrNotFound
	}
	if s.now().After(stored.expiresAt) {
		sh.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// refreshed the key since we released the read lock.
		if cur, still := sh.entries[key]; still && s.now().After(cur.expiresAt) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return authz.CacheEntry{}, sentinel.ErrNotFound
	}
	return stored.entry, nil
}

// Set stores entry under key for ttl. Non-positive TTLs are ignored.
func (s *InMemoryStore) Set(ctx context.Context, key string, entry authz.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	sh.entries[key] = storedEntry{entry: entry, expiresAt: now.Add(ttl)}

	// Sweep a handful of stale neighbours so abandoned keys do not
	// accumulate between reads.
	swept := 0
	for k, v := range sh.entries {
		if now.After(v.expiresAt) {
			delete(sh.entries, k)
		}
		if swept++; swept >= 16 {
			break
		}
	}
	return nil
}

// Len reports the live entry count across all shards (tests, diagnostics).
func (s *InMemoryStore) Len() int {
	total := 0
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, v := range sh.entries {
			if !now.After(v.expiresAt) {
				total++
			}
		}
		sh.mu.RUnlock()
	}
	return total
}
