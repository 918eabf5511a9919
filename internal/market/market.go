// Package market provides the external market-price and weather-condition
// collaborator consulted during stage transitions. The feed is allowed to be
// unavailable; callers substitute the documented fallback reading.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Reading is the fixed-shape observation recorded on every stage record.
type Reading struct {
	Temperature float64   `json:"temperature"` // degrees Celsius
	Humidity    float64   `json:"humidity"`    // percent relative
	Rainfall    float64   `json:"rainfall"`    // millimetres
	WindSpeed   float64   `json:"windSpeed"`   // km/h
	Price       float64   `json:"price"`       // market price index
	Timestamp   time.Time `json:"timestamp"`
}

// Feed reads current market conditions.
type Feed interface {
	ReadConditions(ctx context.Context) (Reading, error)
}

// DefaultReading is the documented fallback substituted when the feed is
// unavailable: temperate conditions at the baseline price index.
func DefaultReading(now time.Time) Reading {
	return Reading{
		Temperature: 20,
		Humidity:    60,
		Rainfall:    0,
		WindSpeed:   10,
		Price:       100,
		Timestamp:   now,
	}
}

// ReadOrFallback consults the feed once and substitutes the fallback reading
// when it is unavailable. The fallback never fails, so stage transitions are
// never blocked by the collaborator.
func ReadOrFallback(ctx context.Context, feed Feed, now time.Time) Reading {
	if feed == nil {
		return DefaultReading(now)
	}
	reading, err := feed.ReadConditions(ctx)
	if err != nil {
		return DefaultReading(now)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = now
	}
	return reading
}

// HTTPFeed reads conditions from an external JSON endpoint.
type HTTPFeed struct {
	url    string
	client *http.Client
}

func NewHTTPFeed(url string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFeed) ReadConditions(ctx context.Context) (Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Reading{}, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("market feed unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("market feed returned status %d", resp.StatusCode)
	}
	var reading Reading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return Reading{}, fmt.Errorf("decode market reading: %w", err)
	}
	return reading, nil
}

// StaticFeed returns a fixed reading. Used by tests and local wiring.
type StaticFeed struct {
	Reading Reading
	Err     error
}

func (f *StaticFeed) ReadConditions(context.Context) (Reading, error) {
	if f.Err != nil {
		return Reading{}, f.Err
	}
	return f.Reading, nil
}
