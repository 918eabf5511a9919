package product

import (
	"fmt"
	"math"

	"foodtrace/internal/market"
)

// Threshold rules evaluated against every fresh market snapshot. Hits are
// emitted as advisory notifications and never block a transition.
const (
	minTemperature = 0.0
	maxTemperature = 40.0
	minHumidity    = 20.0
	maxHumidity    = 90.0
	maxRainfall    = 50.0

	// priceMoveLimit flags a snapshot price moving more than 10% from the
	// prior stage's snapshot.
	priceMoveLimit = 0.10
	// priceDivergenceLimit flags the product's prior estimated price
	// diverging more than 5% from the live reading.
	priceDivergenceLimit = 0.05
)

// evaluateAdvisories returns human-readable advisory messages for a new
// snapshot. prior is the snapshot of the previous stage record; priorPrice
// is the product's estimated price before this transition.
func evaluateAdvisories(reading market.Reading, prior market.Reading, priorPrice float64) []string {
	var advisories []string
	if reading.Temperature < minTemperature || reading.Temperature > maxTemperature {
		advisories = append(advisories,
			fmt.Sprintf("temperature %.1f°C outside [%.0f, %.0f]", reading.Temperature, minTemperature, maxTemperature))
	}
	if reading.Humidity < minHumidity || reading.Humidity > maxHumidity {
		advisories = append(advisories,
			fmt.Sprintf("humidity %.1f%% outside [%.0f, %.0f]", reading.Humidity, minHumidity, maxHumidity))
	}
	if reading.Rainfall > maxRainfall {
		advisories = append(advisories,
			fmt.Sprintf("rainfall %.1fmm above %.0fmm", reading.Rainfall, maxRainfall))
	}
	if prior.Price > 0 && relativeChange(prior.Price, reading.Price) > priceMoveLimit {
		advisories = append(advisories,
			fmt.Sprintf("market price moved %.1f%% since prior stage", relativeChange(prior.Price, reading.Price)*100))
	}
	if priorPrice > 0 && relativeChange(priorPrice, reading.Price) > priceDivergenceLimit {
		advisories = append(advisories,
			fmt.Sprintf("stage price diverges %.1f%% from live market reading", relativeChange(priorPrice, reading.Price)*100))
	}
	return advisories
}

func relativeChange(base, current float64) float64 {
	return math.Abs(current-base) / base
}
