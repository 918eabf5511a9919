//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "foodtrace/pkg/platform/audit"
	"foodtrace/pkg/testutil/containers"
)

type OutboxSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *OutboxSuite) TearDownSuite() {
	s.pg.Terminate(context.Background())
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "trace_outbox"))
}

func (s *OutboxSuite) event(entityID, actor string, at time.Time) audit.Event {
	return audit.Event{
		ID:         uuid.New(),
		Category:   audit.CategoryCompliance,
		Timestamp:  at,
		EntityKind: audit.EntityShipment,
		EntityID:   entityID,
		Actor:      actor,
		Action:     audit.EventShipmentCreated,
		Detail:     "tracking T1",
		RequestID:  "req-1",
	}
}

func (s *OutboxSuite) TestAppendAndListRoundTrip() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := s.event("1", "dist-1", base)
	second := s.event("1", "dist-2", base.Add(time.Second))
	other := s.event("2", "dist-1", base.Add(2*time.Second))
	for _, ev := range []audit.Event{first, second, other} {
		s.Require().NoError(s.store.Append(ctx, ev))
	}

	byEntity, err := s.store.ListByEntity(ctx, audit.EntityShipment, "1")
	s.Require().NoError(err)
	s.Require().Len(byEntity, 2)
	s.Equal(first.ID, byEntity[0].ID)
	s.Equal(audit.EventShipmentCreated, byEntity[0].Action)
	s.Equal("tracking T1", byEntity[0].Detail)

	byActor, err := s.store.ListByActor(ctx, "dist-1")
	s.Require().NoError(err)
	s.Len(byActor, 2)
}

func (s *OutboxSuite) TestUnpublishedDrainsInOrder() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := s.event("1", "dist-1", base)
	second := s.event("2", "dist-1", base.Add(time.Second))
	third := s.event("3", "dist-1", base.Add(2*time.Second))
	for _, ev := range []audit.Event{first, second, third} {
		s.Require().NoError(s.store.Append(ctx, ev))
	}

	batch, err := s.store.NextUnpublished(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(first.ID, batch[0].ID)
	s.Equal(second.ID, batch[1].ID)

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{first.ID, second.ID}))

	rest, err := s.store.NextUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(third.ID, rest[0].ID)

	// Published rows stay readable through the log queries.
	all, err := s.store.ListByActor(ctx, "dist-1")
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *OutboxSuite) TestMarkPublishedIsIdempotent() {
	ctx := context.Background()
	ev := s.event("1", "dist-1", time.Now().UTC())
	s.Require().NoError(s.store.Append(ctx, ev))

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{ev.ID}))
	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{ev.ID}))
	s.Require().NoError(s.store.MarkPublished(ctx, nil))

	pending, err := s.store.NextUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
