// Package session tracks per-user MFA state consulted by the decision
// engine: when the second factor was last verified, with which method, and
// recent failure and location history.
package session

import (
	"context"
	"sync"
	"time"

	"opsgate/internal/authz/ports"
	id "opsgate/pkg/domain"
)

// InMemoryStore is a process-local ports.SessionOracle. Suitable for single
// instance deployments and tests; distributed deployments share state
// through the Redis store instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.UserID]ports.MFAObservation
}

// NewInMemoryStore creates an empty session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.UserID]ports.MFAObservation)}
}

// Observe returns the stored observation for userID. Users with no record
// get a zero observation rather than an error: "never verified" is a valid
// answer, not a fault.
func (s *InMemoryStore) Observe(ctx context.Context, userID id.UserID) (ports.MFAObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID], nil
}

// RecordVerification marks a completed MFA challenge and resets the failure
// counter.
func (s *InMemoryStore) RecordVerification(ctx context.Context, userID id.UserID, method id.MFAMethod, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := s.sessions[userID]
	obs.LastVerifiedAt = at
	obs.Method = method
	obs.FailureCount = 0
	s.sessions[userID] = obs
	return nil
}

// RecordLocation notes where and when the user was last seen.
func (s *InMemoryStore) RecordLocation(ctx context.Context, userID id.UserID, location string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := s.sessions[userID]
	obs.LastLocation = location
	obs.LastSeenAt = at
	s.sessions[userID] = obs
	return nil
}

// RecordFailure increments the consecutive MFA failure counter.
func (s *InMemoryStore) RecordFailure(ctx context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := s.sessions[userID]
	obs.FailureCount++
	s.sessions[userID] = obs
	return nil
}

// ClearFailures resets the consecutive MFA failure counter.
func (s *InMemoryStore) ClearFailures(ctx context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := s.sessions[userID]
	obs.FailureCount = 0
	s.sessions[userID] = obs
	return nil
}
