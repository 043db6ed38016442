package decision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"opsgate/internal/authz"
	"opsgate/pkg/platform/circuit"
	"opsgate/pkg/platform/sentinel"
)

// FailoverStore fronts a shared cache (Redis) with a process-local fallback
// behind a circuit breaker. Primary failures fall back to the local store,
// and while the circuit is open every primary call doubles as a recovery
// probe: answers are served locally until the breaker closes again.
type FailoverStore struct {
	primary  authz.DecisionCache
	fallback authz.DecisionCache
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// NewFailoverStore wraps primary with fallback. The breaker opens after five
// consecutive primary failures and closes after three successful probes.
func NewFailoverStore(primary, fallback authz.DecisionCache, logger *slog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("decision-cache"),
		logger:   logger,
	}
}

func (s *FailoverStore) Get(ctx context.Context, key string) (authz.CacheEntry, error) {
	entry, err := s.primary.Get(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.recordFailure(ctx, err)
		return s.fallback.Get(ctx, key)
	}

	// A miss is still a healthy answer from the backend.
	if usePrimary, change := s.breaker.RecordSuccess(); !usePrimary {
		return s.fallback.Get(ctx, key)
	} else if change.Closed {
		s.logger.InfoContext(ctx, "decision cache circuit closed, primary restored",
			"breaker", s.breaker.Name(),
		)
	}
	return entry, err
}

func (s *FailoverStore) Set(ctx context.Context, key string, entry authz.CacheEntry, ttl time.Duration) error {
	// The fallback is always written: if the primary drops out next request,
	// recent decisions are still served locally.
	if err := s.fallback.Set(ctx, key, entry, ttl); err != nil {
		return err
	}

	if err := s.primary.Set(ctx, key, entry, ttl); err != nil {
		s.recordFailure(ctx, err)
		return nil
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "decision cache circuit closed, primary restored",
			"breaker", s.breaker.Name(),
		)
	}
	return nil
}

func (s *FailoverStore) recordFailure(ctx context.Context, err error) {
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "decision cache circuit opened, serving local fallback",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
}
