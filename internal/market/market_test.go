package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFeedDecodesAReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature": 31.5, "humidity": 70, "rainfall": 12, "windSpeed": 22, "price": 104.2}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, time.Second)
	reading, err := feed.ReadConditions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31.5, reading.Temperature)
	assert.Equal(t, 104.2, reading.Price)
}

func TestHTTPFeedRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPFeed(srv.URL, time.Second).ReadConditions(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestReadOrFallback(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil feed yields the default reading", func(t *testing.T) {
		reading := ReadOrFallback(context.Background(), nil, now)
		assert.Equal(t, DefaultReading(now), reading)
	})

	t.Run("a failing feed yields the default reading", func(t *testing.T) {
		feed := &StaticFeed{Err: errors.New("down")}
		reading := ReadOrFallback(context.Background(), feed, now)
		assert.Equal(t, DefaultReading(now), reading)
	})

	t.Run("a healthy feed wins and gets a timestamp", func(t *testing.T) {
		feed := &StaticFeed{Reading: Reading{Temperature: 5, Price: 90}}
		reading := ReadOrFallback(context.Background(), feed, now)
		assert.Equal(t, 5.0, reading.Temperature)
		assert.Equal(t, now, reading.Timestamp)
	})
}
