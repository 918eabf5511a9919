package product

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"foodtrace/internal/market"
)

func TestEvaluateAdvisories(t *testing.T) {
	steady := market.Reading{Temperature: 20, Humidity: 60, Rainfall: 5, Price: 100}

	tests := []struct {
		name       string
		reading    market.Reading
		prior      market.Reading
		priorPrice float64
		want       int
	}{
		{"all in band", steady, steady, 100, 0},
		{"cold snap", market.Reading{Temperature: -3, Humidity: 60, Price: 100}, steady, 100, 1},
		{"heat wave", market.Reading{Temperature: 41, Humidity: 60, Price: 100}, steady, 100, 1},
		{"dry air", market.Reading{Temperature: 20, Humidity: 10, Price: 100}, steady, 100, 1},
		{"flooding", market.Reading{Temperature: 20, Humidity: 60, Rainfall: 60, Price: 100}, steady, 100, 1},
		{"price spike vs prior stage and estimate", market.Reading{Temperature: 20, Humidity: 60, Price: 115}, steady, 100, 2},
		{"small divergence only trips the tighter estimate rule", market.Reading{Temperature: 20, Humidity: 60, Price: 107}, steady, 100, 1},
		{"no prior price skips the price rules", market.Reading{Temperature: 20, Humidity: 60, Price: 115}, market.Reading{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateAdvisories(tt.reading, tt.prior, tt.priorPrice)
			assert.Len(t, got, tt.want)
		})
	}
}
