// Package postgres implements the notification log on PostgreSQL using the
// transactional outbox pattern. Events are written to the outbox table and
// relayed to Kafka by the relay worker; the table itself remains queryable
// so observers can read the log without a broker.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "foodtrace/pkg/platform/audit"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the outbox table when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trace_outbox (
			id           UUID PRIMARY KEY,
			category     TEXT NOT NULL,
			occurred_at  TIMESTAMPTZ NOT NULL,
			entity_kind  TEXT NOT NULL,
			entity_id    TEXT NOT NULL,
			actor        TEXT NOT NULL DEFAULT '',
			action       TEXT NOT NULL,
			detail       TEXT NOT NULL DEFAULT '',
			request_id   TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS trace_outbox_entity_idx
			ON trace_outbox (entity_kind, entity_id, occurred_at);
		CREATE INDEX IF NOT EXISTS trace_outbox_actor_idx
			ON trace_outbox (actor, occurred_at);
		CREATE INDEX IF NOT EXISTS trace_outbox_unpublished_idx
			ON trace_outbox (occurred_at) WHERE published_at IS NULL;
	`)
	if err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_outbox
			(id, category, occurred_at, entity_kind, entity_id, actor, action, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		eventID, string(event.Category), event.Timestamp,
		string(event.EntityKind), event.EntityID, event.Actor,
		event.Action, event.Detail, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, kind audit.EntityKind, entityID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, occurred_at, entity_kind, entity_id, actor, action, detail, request_id
		FROM trace_outbox
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY occurred_at, id`,
		string(kind), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox by entity: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListByActor(ctx context.Context, actor string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, occurred_at, entity_kind, entity_id, actor, action, detail, request_id
		FROM trace_outbox
		WHERE actor = $1
		ORDER BY occurred_at, id`,
		actor,
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox by actor: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// NextUnpublished returns the oldest events not yet relayed to Kafka.
func (s *Store) NextUnpublished(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, occurred_at, entity_kind, entity_id, actor, action, detail, request_id
		FROM trace_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at, id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkPublished stamps the given events as relayed.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE trace_outbox SET published_at = NOW()
		WHERE id = ANY($1) AND published_at IS NULL`,
		pq.Array(raw),
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event audit.Event
			id    string
			cat   string
			kind  string
		)
		if err := rows.Scan(&id, &cat, &event.Timestamp, &kind, &event.EntityID,
			&event.Actor, &event.Action, &event.Detail, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse outbox event id: %w", err)
		}
		event.ID = parsed
		event.Category = audit.EventCategory(cat)
		event.EntityKind = audit.EntityKind(kind)
		events = append(events, event)
	}
	return events, rows.Err()
}
