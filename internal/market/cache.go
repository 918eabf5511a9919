package market

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "foodtrace:market:reading"

// CachedFeed decorates a Feed with a short-TTL Redis cache so bursts of
// stage transitions don't hammer the external endpoint. Cache failures fall
// through to the inner feed.
type CachedFeed struct {
	inner  Feed
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedFeed(inner Feed, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedFeed {
	return &CachedFeed{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (f *CachedFeed) ReadConditions(ctx context.Context) (Reading, error) {
	if raw, err := f.client.Get(ctx, cacheKey).Bytes(); err == nil {
		var reading Reading
		if err := json.Unmarshal(raw, &reading); err == nil {
			return reading, nil
		}
	}

	reading, err := f.inner.ReadConditions(ctx)
	if err != nil {
		return Reading{}, err
	}

	if raw, err := json.Marshal(reading); err == nil {
		if err := f.client.Set(ctx, cacheKey, raw, f.ttl).Err(); err != nil && f.logger != nil {
			f.logger.WarnContext(ctx, "market reading cache write failed", "error", err)
		}
	}
	return reading, nil
}
