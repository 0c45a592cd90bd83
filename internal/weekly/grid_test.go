package weekly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekgrid/pkg/model"
)

func TestBreach(t *testing.T) {
	tests := []struct {
		exc  float64
		want model.BreachLevel
	}{
		{0.02, model.BreachSafe},
		{0.06, model.BreachSafe},
		{0.08, model.BreachCloseCall},
		{0.10, model.BreachCloseCall},
		{0.11, model.BreachBreached},
		{-0.15, model.BreachBreached},
	}

	for _, tt := range tests {
		if got := Breach(tt.exc, DefaultBreachThreshold); got != tt.want {
			t.Errorf("Breach(%v) = %s, expected %s", tt.exc, got, tt.want)
		}
	}
}

func TestGrid(t *testing.T) {
	weeks := []model.WeeklySummary{
		{ISOYear: 2023, ISOWeek: 52, MaxExcursion: 0.2},
		{ISOYear: 2024, ISOWeek: 1, MaxExcursion: 0.01},
		{ISOYear: 2024, ISOWeek: 2, MaxExcursion: 0.09},
		{ISOYear: 2024, ISOWeek: 3, MaxExcursion: 0.3},
	}

	grid := Grid(weeks, 2024, DefaultBreachThreshold)
	require.Len(t, grid, 3)
	assert.Equal(t, 1, grid[0].ISOWeek)
	assert.Equal(t, model.BreachSafe, grid[0].Breach)
	assert.Equal(t, model.BreachCloseCall, grid[1].Breach)
	assert.Equal(t, model.BreachBreached, grid[2].Breach)

	assert.Empty(t, Grid(weeks, 2019, DefaultBreachThreshold))
}
