package domain

import (
	"github.com/google/uuid"

	dErrors "opsgate/pkg/domain-errors"
)

// Typed identifiers prevent cross-type assignment at compile time. Construct
// via the Parse functions at trust boundaries; direct casting bypasses
// validation.
type (
	// UserID identifies an authenticated operator.
	UserID uuid.UUID

	// GrantID identifies a temporary access grant.
	GrantID uuid.UUID
)

// ParseUserID constructs a UserID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID; no other errors are expected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseGrantID constructs a GrantID from external input.
func ParseGrantID(s string) (GrantID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return GrantID{}, err
	}
	return GrantID(u), nil
}

// NewUserID generates a random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewGrantID generates a random GrantID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

func (id UserID) String() string  { return uuid.UUID(id).String() }
func (id GrantID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	// uuid.Parse also accepts braced, URN-prefixed, and bare-hex forms; only
	// the canonical 36-character form crosses the trust boundary.
	if len(s) != 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id not allowed")
	}
	return u, nil
}
