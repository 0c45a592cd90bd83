package series

import (
	"sort"

	"github.com/guregu/null/v6"

	"weekgrid/pkg/model"
)

// FromCandles converts provider or store bars into daily records without sentiment.
// Bars are keyed by their calendar day.
func FromCandles(candles []model.Candle) []model.DailyRecord {
	records := make([]model.DailyRecord, len(candles))
	for i, c := range candles {
		records[i] = model.DailyRecord{
			Date:  Day(c.Time),
			Open:  c.Open,
			Close: c.Close,
			High:  c.High,
			Low:   c.Low,
		}
	}
	return records
}

// MergeSentiment attaches the sentiment reading of the same calendar day to each record.
// With inner set, records without a reading are dropped; otherwise they keep a null score.
// The result is sorted by date.
func MergeSentiment(records []model.DailyRecord, points []model.SentimentPoint, inner bool) []model.DailyRecord {
	byDay := make(map[string]int, len(points))
	for _, p := range points {
		byDay[p.Date.Format(DateLayout)] = p.Value
	}

	merged := make([]model.DailyRecord, 0, len(records))
	for _, r := range records {
		v, ok := byDay[r.Date.Format(DateLayout)]
		if ok {
			r.Sentiment = null.FloatFrom(float64(v))
		} else if inner {
			continue
		}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// FilterYears keeps records whose calendar year is listed. An empty list keeps everything.
func FilterYears(records []model.DailyRecord, years []int) []model.DailyRecord {
	if len(years) == 0 {
		return records
	}
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}
	out := make([]model.DailyRecord, 0, len(records))
	for _, r := range records {
		if want[r.Date.Year()] {
			out = append(out, r)
		}
	}
	return out
}
