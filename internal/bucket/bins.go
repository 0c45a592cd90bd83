// Package bucket classifies change ratios into fixed bins and builds year x bucket tables.
package bucket

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultBoundaries partition [-50%, +50%] into ten buckets
var DefaultBoundaries = []float64{-0.5, -0.2, -0.15, -0.1, -0.05, 0, 0.05, 0.1, 0.15, 0.2, 0.5}

// ErrUnknownBucket is returned when a label does not name a bucket of the bins
var ErrUnknownBucket = errors.New("unknown bucket")

// Bins is an ordered partition of the change-ratio domain into (lower, upper] intervals.
// The first boundary belongs to the first interval.
type Bins struct {
	bounds []float64
	labels []string
}

// NewBins validates boundaries and precomputes labels
func NewBins(boundaries []float64) (*Bins, error) {
	if len(boundaries) < 2 {
		return nil, fmt.Errorf("need at least 2 boundaries, got %d", len(boundaries))
	}
	bounds := make([]float64, len(boundaries))
	copy(bounds, boundaries)
	for i, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("boundary %d is not finite", i)
		}
		if i > 0 && b <= bounds[i-1] {
			return nil, fmt.Errorf("boundaries must be strictly increasing: %v after %v", b, bounds[i-1])
		}
	}

	labels := make([]string, len(bounds)-1)
	for i := range labels {
		labels[i] = Label(bounds[i], bounds[i+1])
	}
	return &Bins{bounds: bounds, labels: labels}, nil
}

// Default returns the bins built from DefaultBoundaries
func Default() *Bins {
	b, err := NewBins(DefaultBoundaries)
	if err != nil {
		panic(err)
	}
	return b
}

// Len is the number of buckets
func (b *Bins) Len() int { return len(b.labels) }

// Labels returns bucket labels in canonical order
func (b *Bins) Labels() []string {
	out := make([]string, len(b.labels))
	copy(out, b.labels)
	return out
}

// Boundaries returns a copy of the boundaries
func (b *Bins) Boundaries() []float64 {
	out := make([]float64, len(b.bounds))
	copy(out, b.bounds)
	return out
}

// Min and Max bound the classifiable domain
func (b *Bins) Min() float64 { return b.bounds[0] }
func (b *Bins) Max() float64 { return b.bounds[len(b.bounds)-1] }

// Locate returns the bucket index of v, or false when v is outside the domain or NaN
func (b *Bins) Locate(v float64) (int, bool) {
	if math.IsNaN(v) || v < b.bounds[0] || v > b.bounds[len(b.bounds)-1] {
		return 0, false
	}
	// smallest i with bounds[i] >= v; v == bounds[i] belongs to (bounds[i-1], bounds[i]]
	i := sort.SearchFloat64s(b.bounds, v)
	if i == 0 {
		return 0, true
	}
	return i - 1, true
}

// Interval returns the bounds of bucket i
func (b *Bins) Interval(i int) (lower, upper float64) {
	return b.bounds[i], b.bounds[i+1]
}

// Lookup returns the index of the bucket with the given label
func (b *Bins) Lookup(label string) (int, error) {
	lower, upper, err := ParseLabel(label)
	if err != nil {
		return 0, err
	}
	for i := range b.labels {
		if b.bounds[i] == lower && b.bounds[i+1] == upper {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownBucket, label)
}

// Contains reports whether v falls into the bucket named by label
func (b *Bins) Contains(label string, v float64) bool {
	want, err := b.Lookup(label)
	if err != nil {
		return false
	}
	got, ok := b.Locate(v)
	return ok && got == want
}

// Label renders an interval as "(lower, upper]"
func Label(lower, upper float64) string {
	return "(" + formatBound(lower) + ", " + formatBound(upper) + "]"
}

// ParseLabel turns a label produced by Label back into its bounds
func ParseLabel(label string) (lower, upper float64, err error) {
	s := strings.TrimSpace(label)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, "]") {
		return 0, 0, fmt.Errorf("%w: %q is not of the form (lower, upper]", ErrUnknownBucket, label)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not of the form (lower, upper]", ErrUnknownBucket, label)
	}
	lower, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing lower bound of %q: %w", label, err)
	}
	upper, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing upper bound of %q: %w", label, err)
	}
	if lower >= upper {
		return 0, 0, fmt.Errorf("%w: %q has lower >= upper", ErrUnknownBucket, label)
	}
	return lower, upper, nil
}

// formatBound prints the shortest representation with at least one decimal
func formatBound(v float64) string {
	if v == 0 {
		v = 0 // drop negative zero
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
