package ports

import (
	"context"

	"opsgate/pkg/platform/audit"
)

// AuditPort defines the interface for emitting audit events. This matches
// the publisher's Emit but is defined here to maintain hexagonal boundaries:
// the engine never learns which sinks are wired behind it.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event) error
}
