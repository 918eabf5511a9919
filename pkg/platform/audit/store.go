package audit

import "context"

// Store is the append-only notification log. Implementations never delete:
// the log is the externally observable record of every state change.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, kind EntityKind, entityID string) ([]Event, error)
	ListByActor(ctx context.Context, actor string) ([]Event, error)
}
