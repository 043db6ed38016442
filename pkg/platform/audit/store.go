package audit

import (
	"context"

	id "opsgate/pkg/domain"
)

// Store is the persistence boundary for audit events. Implementations must
// be safe for concurrent use; Append is called from the publisher's drain
// goroutine as well as synchronous emitters.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
