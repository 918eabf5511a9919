package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"foodtrace/pkg/requestcontext"
)

// Recorder is the emission facade services hold. Mutation events are
// fail-closed: if the log cannot be appended, the business operation must
// not report success. Advisory events are fail-open: they are logged and
// dropped on store failure so they never block a transition.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record synchronously appends a notification for a successful mutation.
// Returns error if persistence fails - the caller MUST fail its operation.
func (r *Recorder) Record(ctx context.Context, kind EntityKind, entityID string, tag Tag, detail string) error {
	event := r.build(ctx, kind, entityID, tag, detail)
	if err := r.store.Append(ctx, event); err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "notification append failed",
				"action", string(tag),
				"entity_id", entityID,
				"error", err,
			)
		}
		return fmt.Errorf("notification append failed: %w", err)
	}
	return nil
}

// Advise appends an advisory event, swallowing store failures. Advisories
// inform observers of threshold rule hits and have no bearing on
// correctness.
func (r *Recorder) Advise(ctx context.Context, kind EntityKind, entityID string, tag Tag, detail string) {
	event := r.build(ctx, kind, entityID, tag, detail)
	if err := r.store.Append(ctx, event); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "advisory dropped",
			"action", string(tag),
			"entity_id", entityID,
			"error", err,
		)
	}
}

func (r *Recorder) build(ctx context.Context, kind EntityKind, entityID string, tag Tag, detail string) Event {
	ts := requestcontext.Now(ctx)
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		ID:         uuid.New(),
		Category:   tag.Category(),
		Timestamp:  ts,
		EntityKind: kind,
		EntityID:   entityID,
		Actor:      requestcontext.Caller(ctx),
		Action:     string(tag),
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
	}
}
