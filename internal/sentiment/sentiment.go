// Package sentiment classifies Fear & Greed readings and labels yearly market regimes.
package sentiment

import (
	"sort"

	"weekgrid/pkg/model"
)

// Fear & Greed classifications
const (
	ExtremeFear  = "Extreme Fear"
	Fear         = "Fear"
	Neutral      = "Neutral"
	Greed        = "Greed"
	ExtremeGreed = "Extreme Greed"
)

// Classify maps an index value (0-100) to its band
func Classify(value float64) string {
	switch {
	case value <= 24:
		return ExtremeFear
	case value <= 44:
		return Fear
	case value <= 55:
		return Neutral
	case value <= 75:
		return Greed
	default:
		return ExtremeGreed
	}
}

// Regime is the market phase assigned to a calendar year
type Regime struct {
	Year  int    `json:"year"`
	Label string `json:"label"`
}

var regimes = map[int]string{
	2018: "Bear",
	2019: "Bull",
	2020: "Bull",
	2021: "Bull",
	2022: "Bear",
	2023: "Neutral",
	2024: "Bull",
	2025: "Current",
}

// RegimeOf returns the phase of year, or "Unknown"
func RegimeOf(year int) string {
	if r, ok := regimes[year]; ok {
		return r
	}
	return "Unknown"
}

// Regimes lists the known phases by year
func Regimes() []Regime {
	out := make([]Regime, 0, len(regimes))
	for y, l := range regimes {
		out = append(out, Regime{Year: y, Label: l})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Reclassify fills in missing classifications from the value
func Reclassify(points []model.SentimentPoint) {
	for i := range points {
		if points[i].Classification == "" {
			points[i].Classification = Classify(float64(points[i].Value))
		}
	}
}
