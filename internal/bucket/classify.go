package bucket

import (
	"fmt"
	"sort"
	"strconv"

	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

// RangeError reports a change ratio outside the configured bins
type RangeError struct {
	Value    float64
	Identity string
	Lower    float64
	Upper    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("change %v of %s outside bucket range [%v, %v]", e.Value, e.Identity, e.Lower, e.Upper)
}

// Selector tells Classify how to read a record
type Selector[T any] struct {
	Change   func(T) float64
	Year     func(T) int
	Identity func(T) string
}

// Classify counts items per (year, bucket) and appends the Total rows.
// Rows are sparse: empty buckets are omitted. Years ascend, buckets follow the bins order.
func Classify[T any](items []T, sel Selector[T], bins *Bins) ([]model.BucketRow, error) {
	counts := make(map[int][]int)
	totals := make([]int, bins.Len())
	grand := 0

	for _, item := range items {
		v := sel.Change(item)
		idx, ok := bins.Locate(v)
		if !ok {
			return nil, &RangeError{Value: v, Identity: sel.Identity(item), Lower: bins.Min(), Upper: bins.Max()}
		}
		y := sel.Year(item)
		row, exists := counts[y]
		if !exists {
			row = make([]int, bins.Len())
			counts[y] = row
		}
		row[idx]++
		totals[idx]++
		grand++
	}

	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Ints(years)

	rows := make([]model.BucketRow, 0, (len(years)+1)*bins.Len())
	for _, y := range years {
		rows = appendRows(rows, strconv.Itoa(y), counts[y], bins)
	}
	if grand > 0 {
		rows = appendRows(rows, model.TotalYear, totals, bins)
	}
	return rows, nil
}

func appendRows(rows []model.BucketRow, year string, counts []int, bins *Bins) []model.BucketRow {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	for i, c := range counts {
		if c == 0 {
			continue
		}
		rows = append(rows, model.BucketRow{
			Year:       year,
			Bucket:     bins.labels[i],
			Count:      c,
			Percentage: float64(c) / float64(sum) * 100,
		})
	}
	return rows
}

// DailySelector reads the open-to-close change of a day, grouped by Gregorian year
var DailySelector = Selector[model.DailyRecord]{
	Change:   func(r model.DailyRecord) float64 { return r.Change() },
	Year:     func(r model.DailyRecord) int { return r.Date.Year() },
	Identity: func(r model.DailyRecord) string { return r.Date.Format(series.DateLayout) },
}

// WeeklySelector reads the weekly change, grouped by ISO year
var WeeklySelector = Selector[model.WeeklySummary]{
	Change:   func(w model.WeeklySummary) float64 { return w.WeeklyChange },
	Year:     func(w model.WeeklySummary) int { return w.ISOYear },
	Identity: WeekID,
}

// WeekID formats a week as "2024-W01"
func WeekID(w model.WeeklySummary) string {
	return fmt.Sprintf("%d-W%02d", w.ISOYear, w.ISOWeek)
}

// Daily builds the daily-granularity table. Records are validated first.
func Daily(records []model.DailyRecord, bins *Bins) ([]model.BucketRow, error) {
	if err := series.Validate(records); err != nil {
		return nil, err
	}
	return Classify(records, DailySelector, bins)
}

// Weekly builds the weekly-granularity table
func Weekly(weeks []model.WeeklySummary, bins *Bins) ([]model.BucketRow, error) {
	return Classify(weeks, WeeklySelector, bins)
}

// Members returns the items of one bucket, optionally restricted to a single year.
// year 0 means every year.
func Members[T any](items []T, sel Selector[T], bins *Bins, label string, year int) ([]T, error) {
	want, err := bins.Lookup(label)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, item := range items {
		if year != 0 && sel.Year(item) != year {
			continue
		}
		v := sel.Change(item)
		idx, ok := bins.Locate(v)
		if !ok {
			return nil, &RangeError{Value: v, Identity: sel.Identity(item), Lower: bins.Min(), Upper: bins.Max()}
		}
		if idx == want {
			out = append(out, item)
		}
	}
	return out, nil
}
