// Package weekly groups a daily record stream into ISO weeks.
package weekly

import (
	"math"
	"sort"

	"github.com/guregu/null/v6"

	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

// MinTradingDays is the smallest number of records that makes a week usable
const MinTradingDays = 2

type weekKey struct {
	year int
	week int
}

// Aggregate builds one summary per ISO week that has at least MinTradingDays records.
// Input order does not matter. Any invalid record fails the whole call.
func Aggregate(records []model.DailyRecord) ([]model.WeeklySummary, error) {
	if err := series.Validate(records); err != nil {
		return nil, err
	}

	groups := make(map[weekKey][]model.DailyRecord)
	for _, r := range records {
		y, w := r.Date.ISOWeek()
		k := weekKey{year: y, week: w}
		groups[k] = append(groups[k], r)
	}

	keys := make([]weekKey, 0, len(groups))
	for k, g := range groups {
		if len(g) < MinTradingDays {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	summaries := make([]model.WeeklySummary, 0, len(keys))
	for _, k := range keys {
		summaries = append(summaries, summarize(k, groups[k]))
	}
	return summaries, nil
}

func summarize(k weekKey, days []model.DailyRecord) model.WeeklySummary {
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	first := days[0]
	last := days[len(days)-1]

	open := first.Open
	closePrice := last.Close
	high := math.Inf(-1)
	low := math.Inf(1)

	var snapshot model.WeekdaySentiment
	var sentimentSum float64
	var sentimentCount int

	for _, d := range days {
		if d.High > high {
			high = d.High
		}
		if d.Low < low {
			low = d.Low
		}
		snapshot.Set(d.Date.Weekday(), d.Sentiment)
		if d.Sentiment.Valid {
			sentimentSum += d.Sentiment.Float64
			sentimentCount++
		}
	}

	highExc := (high - open) / open
	lowExc := (open - low) / open

	s := model.WeeklySummary{
		ISOYear:            k.year,
		ISOWeek:            k.week,
		Month:              int(first.Date.Month()),
		WeekStart:          first.Date,
		WeekEnd:            last.Date,
		OpenPrice:          open,
		ClosePrice:         closePrice,
		WeeklyChange:       (closePrice - open) / open,
		IntraweekHigh:      high,
		IntraweekLow:       low,
		HighExcursion:      highExc,
		LowExcursion:       lowExc,
		MaxExcursion:       math.Max(math.Abs(highExc), math.Abs(lowExc)),
		SentimentByWeekday: snapshot,
	}
	if sentimentCount > 0 {
		s.SentimentAvg = null.FloatFrom(sentimentSum / float64(sentimentCount))
	}
	return s
}

// FilterYears keeps weeks whose ISO year is listed. An empty list keeps everything.
func FilterYears(weeks []model.WeeklySummary, years []int) []model.WeeklySummary {
	if len(years) == 0 {
		return weeks
	}
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}
	out := make([]model.WeeklySummary, 0, len(weeks))
	for _, w := range weeks {
		if want[w.ISOYear] {
			out = append(out, w)
		}
	}
	return out
}
