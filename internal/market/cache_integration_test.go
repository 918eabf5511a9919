//go:build integration

package market

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"foodtrace/pkg/testutil/containers"
)

// countingFeed records how often the inner feed is consulted.
type countingFeed struct {
	reading Reading
	calls   int
}

func (f *countingFeed) ReadConditions(context.Context) (Reading, error) {
	f.calls++
	return f.reading, nil
}

type CachedFeedSuite struct {
	suite.Suite
	rd *containers.RedisContainer
}

func TestCachedFeedSuite(t *testing.T) {
	suite.Run(t, new(CachedFeedSuite))
}

func (s *CachedFeedSuite) SetupSuite() {
	s.rd = containers.NewRedisContainer(s.T())
}

func (s *CachedFeedSuite) TearDownSuite() {
	s.rd.Terminate(context.Background())
}

func (s *CachedFeedSuite) SetupTest() {
	s.Require().NoError(s.rd.FlushAll(context.Background()))
}

func (s *CachedFeedSuite) TestSecondReadComesFromCache() {
	ctx := context.Background()
	inner := &countingFeed{reading: Reading{Temperature: 18, Humidity: 55, Price: 100}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewCachedFeed(inner, s.rd.Client, time.Minute, logger)

	first, err := feed.ReadConditions(ctx)
	s.Require().NoError(err)
	second, err := feed.ReadConditions(ctx)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(1, inner.calls)
}

func (s *CachedFeedSuite) TestExpiredEntryFallsThroughToTheFeed() {
	ctx := context.Background()
	inner := &countingFeed{reading: Reading{Temperature: 18, Humidity: 55, Price: 100}}
	feed := NewCachedFeed(inner, s.rd.Client, 50*time.Millisecond, nil)

	_, err := feed.ReadConditions(ctx)
	s.Require().NoError(err)

	time.Sleep(100 * time.Millisecond)

	_, err = feed.ReadConditions(ctx)
	s.Require().NoError(err)
	s.Equal(2, inner.calls)
}

func (s *CachedFeedSuite) TestCorruptCacheEntryIsIgnored() {
	ctx := context.Background()
	s.Require().NoError(s.rd.Client.Set(ctx, cacheKey, "not json", time.Minute).Err())

	inner := &countingFeed{reading: Reading{Temperature: 18, Humidity: 55, Price: 100}}
	feed := NewCachedFeed(inner, s.rd.Client, time.Minute, nil)

	got, err := feed.ReadConditions(ctx)
	s.Require().NoError(err)
	s.Equal(inner.reading, got)
	s.Equal(1, inner.calls)
}
