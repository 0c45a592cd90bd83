package weekly

import (
	"math"

	"weekgrid/pkg/model"
)

// DefaultBreachThreshold is the excursion that counts as a breach
const DefaultBreachThreshold = 0.10

// closeCallRatio of the threshold above which a week is a close call
const closeCallRatio = 0.7

// Breach rates an excursion against threshold
func Breach(maxExcursion, threshold float64) model.BreachLevel {
	e := math.Abs(maxExcursion)
	switch {
	case e > threshold:
		return model.BreachBreached
	case e > threshold*closeCallRatio:
		return model.BreachCloseCall
	default:
		return model.BreachSafe
	}
}

// Grid returns the weeks of one ISO year in week order, rated against threshold
func Grid(weeks []model.WeeklySummary, year int, threshold float64) []model.GridWeek {
	grid := make([]model.GridWeek, 0, 53)
	for _, w := range weeks {
		if w.ISOYear != year {
			continue
		}
		grid = append(grid, model.GridWeek{
			WeeklySummary: w,
			Breach:        Breach(w.MaxExcursion, threshold),
		})
	}
	return grid
}
