// Package relay drains the notification outbox to Kafka. Kafka is the fan-out
// surface for external observers; the outbox table is the source of truth.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "foodtrace/pkg/platform/audit"
)

// Source is the slice of the outbox store the relay needs.
type Source interface {
	NextUnpublished(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer abstracts the Kafka client so the relay is testable without a
// broker.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay polls the outbox and publishes pending notifications.
type Relay struct {
	source   Source
	producer Producer
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

type Option func(*Relay)

// WithInterval overrides the poll interval (default 2s).
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize overrides the per-poll batch size (default 100).
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batch = n }
}

func New(source Source, producer Producer, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		producer: producer,
		topic:    topic,
		logger:   logger,
		interval: 2 * time.Second,
		batch:    100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are retried on the next
// tick because events are only marked published after a successful produce.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	events, err := r.source.NextUnpublished(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for i := range events {
		payload, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", events[i].ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			// Key by entity so per-entity ordering survives partitioning.
			Key:   []byte(string(events[i].EntityKind) + "/" + events[i].EntityID),
			Value: payload,
		})
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce batch: %w", err)
	}

	ids := make([]uuid.UUID, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return r.source.MarkPublished(ctx, ids)
}

// NewKafkaProducer builds the franz-go client used in production wiring.
func NewKafkaProducer(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}
	return client, nil
}
