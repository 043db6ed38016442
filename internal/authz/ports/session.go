package ports

import (
	"context"
	"time"

	id "opsgate/pkg/domain"
)

// MFAObservation is what the session oracle knows about a user's second
// factor and recent behavior. Zero values mean "no record".
type MFAObservation struct {
	// LastVerifiedAt is when the user last completed an MFA challenge.
	LastVerifiedAt time.Time
	Method         id.MFAMethod
	// FailureCount is the number of consecutive failed MFA attempts.
	FailureCount int
	// LastLocation and LastSeenAt feed the geo-velocity heuristic.
	LastLocation string
	LastSeenAt   time.Time
}

// SessionOracle supplies MFA validity and behavioral history when the
// request context does not self-report it. The engine treats a nil oracle as
// "context is authoritative".
type SessionOracle interface {
	Observe(ctx context.Context, userID id.UserID) (MFAObservation, error)
	RecordFailure(ctx context.Context, userID id.UserID) error
	ClearFailures(ctx context.Context, userID id.UserID) error
}
