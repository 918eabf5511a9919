package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "foodtrace/pkg/platform/audit"
)

type fakeSource struct {
	pending   []audit.Event
	published []uuid.UUID
}

func (f *fakeSource) NextUnpublished(_ context.Context, limit int) ([]audit.Event, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	return f.pending[:limit], nil
}

func (f *fakeSource) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	f.published = append(f.published, ids...)
	remaining := f.pending[:0]
	for _, ev := range f.pending {
		keep := true
		for _, id := range ids {
			if ev.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, ev)
		}
	}
	f.pending = remaining
	return nil
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	if f.err != nil {
		return kgo.ProduceResults{{Err: f.err}}
	}
	f.records = append(f.records, rs...)
	return kgo.ProduceResults{}
}

func event(kind audit.EntityKind, entityID string) audit.Event {
	return audit.Event{
		ID:         uuid.New(),
		Category:   audit.CategoryCompliance,
		Timestamp:  time.Now(),
		EntityKind: kind,
		EntityID:   entityID,
		Actor:      "dist-1",
		Action:     string(audit.EventShipmentCreated),
	}
}

func newRelay(source Source, producer Producer) *Relay {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(source, producer, "foodtrace.notifications", logger)
}

func TestDrainPublishesAndMarks(t *testing.T) {
	first := event(audit.EntityShipment, "1")
	second := event(audit.EntityProduct, "2")
	source := &fakeSource{pending: []audit.Event{first, second}}
	producer := &fakeProducer{}

	r := newRelay(source, producer)
	require.NoError(t, r.drainOnce(context.Background()))

	require.Len(t, producer.records, 2)
	assert.Equal(t, "foodtrace.notifications", producer.records[0].Topic)
	assert.Equal(t, []byte("shipment/1"), producer.records[0].Key)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, source.published)
	assert.Empty(t, source.pending)
}

func TestDrainWithEmptyOutboxIsANoOp(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{}

	require.NoError(t, newRelay(source, producer).drainOnce(context.Background()))
	assert.Empty(t, producer.records)
	assert.Empty(t, source.published)
}

func TestFailedProduceLeavesEventsPending(t *testing.T) {
	source := &fakeSource{pending: []audit.Event{event(audit.EntityShipment, "1")}}
	producer := &fakeProducer{err: errors.New("broker unreachable")}

	err := newRelay(source, producer).drainOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, source.published)
	assert.Len(t, source.pending, 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{}
	r := New(source, producer, "t", slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithInterval(time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
