package bucket

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLabels(t *testing.T) {
	want := []string{
		"(-0.5, -0.2]",
		"(-0.2, -0.15]",
		"(-0.15, -0.1]",
		"(-0.1, -0.05]",
		"(-0.05, 0.0]",
		"(0.0, 0.05]",
		"(0.05, 0.1]",
		"(0.1, 0.15]",
		"(0.15, 0.2]",
		"(0.2, 0.5]",
	}
	assert.Equal(t, want, Default().Labels())
}

func TestLabel_NegativeZero(t *testing.T) {
	assert.Equal(t, "(-0.05, 0.0]", Label(-0.05, math.Copysign(0, -1)))
	assert.Equal(t, "(-1.0, 2.0]", Label(-1, 2))
}

func TestNewBins_Invalid(t *testing.T) {
	tests := [][]float64{
		nil,
		{0.1},
		{0.1, 0.1},
		{0.2, 0.1},
		{0, math.NaN()},
		{math.Inf(-1), 0},
	}
	for _, b := range tests {
		_, err := NewBins(b)
		assert.Error(t, err, "boundaries %v", b)
	}
}

func TestLocate_Boundaries(t *testing.T) {
	bins := Default()

	tests := []struct {
		v    float64
		want int
	}{
		{-0.5, 0},
		{-0.3, 0},
		{-0.2, 0},
		{-0.19999, 1},
		{-0.05, 3},
		{0, 4},
		{1e-9, 5},
		{0.05, 5},
		{0.2, 8},
		{0.5, 9},
	}
	for _, tt := range tests {
		got, ok := bins.Locate(tt.v)
		require.True(t, ok, "value %v", tt.v)
		assert.Equal(t, tt.want, got, "value %v", tt.v)
	}

	for _, v := range []float64{-0.50001, 0.50001, math.NaN(), math.Inf(1)} {
		_, ok := bins.Locate(v)
		assert.False(t, ok, "value %v", v)
	}
}

func TestLocate_Partition(t *testing.T) {
	bins := Default()
	bounds := bins.Boundaries()

	for v := -0.5; v <= 0.5; v += 0.0037 {
		matches := 0
		for i := 0; i < bins.Len(); i++ {
			lo, hi := bins.Interval(i)
			if (v > lo && v <= hi) || (i == 0 && v == bounds[0]) {
				matches++
			}
		}
		idx, ok := bins.Locate(v)
		require.True(t, ok)
		lo, hi := bins.Interval(idx)
		assert.Equal(t, 1, matches, "value %v", v)
		assert.True(t, (v > lo && v <= hi) || (idx == 0 && v == lo), "value %v in bucket %d", v, idx)
	}
}

func TestParseLabel(t *testing.T) {
	lo, hi, err := ParseLabel("(-0.05, 0.0]")
	require.NoError(t, err)
	assert.Equal(t, -0.05, lo)
	assert.Equal(t, 0.0, hi)

	for _, bad := range []string{"", "[0.0, 0.05]", "(0.0 0.05]", "(a, 0.05]", "(0.1, 0.05]"} {
		_, _, err := ParseLabel(bad)
		assert.Error(t, err, "label %q", bad)
	}
}

func TestLookup_RoundTrip(t *testing.T) {
	bins := Default()
	for i, label := range bins.Labels() {
		got, err := bins.Lookup(label)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}

	_, err := bins.Lookup("(0.0, 0.1]")
	assert.True(t, errors.Is(err, ErrUnknownBucket))
}

func TestContains(t *testing.T) {
	bins := Default()
	assert.True(t, bins.Contains("(0.0, 0.05]", 0.05))
	assert.False(t, bins.Contains("(0.0, 0.05]", 0))
	assert.True(t, bins.Contains("(-0.5, -0.2]", -0.5))
	assert.False(t, bins.Contains("bogus", 0.01))
}
