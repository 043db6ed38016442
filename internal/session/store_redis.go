package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsgate/internal/authz/ports"
	id "opsgate/pkg/domain"
)

const (
	sessionKeyPrefix = "session:mfa:"

	// Sessions older than this carry no decision-relevant signal; letting
	// Redis expire them keeps the keyspace bounded.
	sessionTTL = 24 * time.Hour
)

// RedisStore is a Redis-backed ports.SessionOracle shared across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type sessionRecord struct {
	LastVerifiedAt time.Time `json:"last_verified_at,omitzero"`
	Method         string    `json:"method,omitempty"`
	FailureCount   int       `json:"failure_count,omitempty"`
	LastLocation   string    `json:"last_location,omitempty"`
	LastSeenAt     time.Time `json:"last_seen_at,omitzero"`
}

func sessionKey(userID id.UserID) string {
	return sessionKeyPrefix + userID.String()
}

func (s *RedisStore) load(ctx context.Context, userID id.UserID) (sessionRecord, error) {
	raw, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sessionRecord{}, nil
	}
	if err != nil {
		return sessionRecord{}, fmt.Errorf("redis get: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return sessionRecord{}, fmt.Errorf("decode session record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) save(ctx context.Context, userID id.UserID, rec sessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Observe returns the stored observation for userID. Absence of a record is
// a zero observation, not an error.
func (s *RedisStore) Observe(ctx context.Context, userID id.UserID) (ports.MFAObservation, error) {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return ports.MFAObservation{}, err
	}
	return ports.MFAObservation{
		LastVerifiedAt: rec.LastVerifiedAt,
		Method:         id.MFAMethod(rec.Method),
		FailureCount:   rec.FailureCount,
		LastLocation:   rec.LastLocation,
		LastSeenAt:     rec.LastSeenAt,
	}, nil
}

// RecordVerification marks a completed MFA challenge and resets the failure
// counter.
func (s *RedisStore) RecordVerification(ctx context.Context, userID id.UserID, method id.MFAMethod, at time.Time) error {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	rec.LastVerifiedAt = at
	rec.Method = method.String()
	rec.FailureCount = 0
	return s.save(ctx, userID, rec)
}

// RecordLocation notes where and when the user was last seen.
func (s *RedisStore) RecordLocation(ctx context.Context, userID id.UserID, location string, at time.Time) error {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	rec.LastLocation = location
	rec.LastSeenAt = at
	return s.save(ctx, userID, rec)
}

// RecordFailure increments the consecutive MFA failure counter.
func (s *RedisStore) RecordFailure(ctx context.Context, userID id.UserID) error {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	rec.FailureCount++
	return s.save(ctx, userID, rec)
}

// ClearFailures resets the consecutive MFA failure counter.
func (s *RedisStore) ClearFailures(ctx context.Context, userID id.UserID) error {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec.FailureCount == 0 {
		return nil
	}
	rec.FailureCount = 0
	return s.save(ctx, userID, rec)
}
