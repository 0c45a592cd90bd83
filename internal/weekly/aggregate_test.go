package weekly

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

func day(s string) time.Time {
	t, err := time.Parse(series.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(date string, open, closePrice, high, low float64) model.DailyRecord {
	return model.DailyRecord{Date: day(date), Open: open, Close: closePrice, High: high, Low: low}
}

func TestAggregate_FullWeek(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-01", 100, 101, 102, 99),
		rec("2024-01-02", 101, 104, 105, 100),
		rec("2024-01-03", 104, 103, 106, 97),
		rec("2024-01-04", 103, 108, 109, 102),
		rec("2024-01-05", 108, 110, 112, 107),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)

	w := weeks[0]
	assert.Equal(t, 2024, w.ISOYear)
	assert.Equal(t, 1, w.ISOWeek)
	assert.Equal(t, 1, w.Month)
	assert.Equal(t, day("2024-01-01"), w.WeekStart)
	assert.Equal(t, day("2024-01-05"), w.WeekEnd)
	assert.Equal(t, 100.0, w.OpenPrice)
	assert.Equal(t, 110.0, w.ClosePrice)
	assert.InDelta(t, 0.10, w.WeeklyChange, 1e-12)
	assert.Equal(t, 112.0, w.IntraweekHigh)
	assert.Equal(t, 97.0, w.IntraweekLow)
	assert.InDelta(t, 0.12, w.HighExcursion, 1e-12)
	assert.InDelta(t, 0.03, w.LowExcursion, 1e-12)
	assert.InDelta(t, 0.12, w.MaxExcursion, 1e-12)
}

func TestAggregate_HolidayShortenedWeek(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-12", 195, 190, 198, 188),
		rec("2024-01-11", 200, 196, 201, 194),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)

	w := weeks[0]
	assert.Equal(t, day("2024-01-11"), w.WeekStart)
	assert.Equal(t, day("2024-01-12"), w.WeekEnd)
	assert.Equal(t, 200.0, w.OpenPrice)
	assert.Equal(t, 190.0, w.ClosePrice)
	assert.InDelta(t, -0.05, w.WeeklyChange, 1e-12)
}

func TestAggregate_SingleDayWeekDropped(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-08", 100, 101, 102, 99),
		rec("2024-01-15", 100, 101, 102, 99),
		rec("2024-01-16", 101, 102, 103, 100),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, 3, weeks[0].ISOWeek)
}

func TestAggregate_Empty(t *testing.T) {
	weeks, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, weeks)
}

func TestAggregate_ZeroOpenFails(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-01", 100, 101, 102, 99),
		rec("2024-01-02", 0, 104, 105, 100),
	}

	weeks, err := Aggregate(records)
	assert.Nil(t, weeks)

	var dq *series.DataQualityError
	require.True(t, errors.As(err, &dq), "expected DataQualityError, got %v", err)
	assert.Equal(t, "open_price", dq.Field)
}

func TestAggregate_DuplicateDateFails(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-01", 100, 101, 102, 99),
		rec("2024-01-01", 100, 101, 102, 99),
	}

	_, err := Aggregate(records)
	var dq *series.DataQualityError
	require.ErrorAs(t, err, &dq)
	assert.Equal(t, "date", dq.Field)
}

func TestAggregate_ISOYearBoundary(t *testing.T) {
	// 2021-01-01 is a Friday in 2020-W53
	records := []model.DailyRecord{
		rec("2020-12-31", 100, 102, 103, 99),
		rec("2021-01-01", 102, 104, 105, 101),
		rec("2021-01-04", 104, 103, 105, 102),
		rec("2021-01-05", 103, 106, 107, 102),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 2)

	assert.Equal(t, 2020, weeks[0].ISOYear)
	assert.Equal(t, 53, weeks[0].ISOWeek)
	assert.Equal(t, 12, weeks[0].Month)
	assert.Equal(t, 2021, weeks[1].ISOYear)
	assert.Equal(t, 1, weeks[1].ISOWeek)
}

func TestAggregate_MonthFromFirstTradingDay(t *testing.T) {
	// week spanning January and February
	records := []model.DailyRecord{
		rec("2024-01-31", 100, 101, 102, 99),
		rec("2024-02-01", 101, 102, 103, 100),
		rec("2024-02-02", 102, 103, 104, 101),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, 1, weeks[0].Month)
}

func TestAggregate_Sentiment(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-01", 100, 101, 102, 99),
		rec("2024-01-02", 101, 102, 103, 100),
		rec("2024-01-03", 102, 103, 104, 101),
		rec("2024-01-06", 103, 104, 105, 102), // Saturday
	}
	records[0].Sentiment = null.FloatFrom(40)
	records[2].Sentiment = null.FloatFrom(60)
	records[3].Sentiment = null.FloatFrom(80)

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)

	w := weeks[0]
	assert.Equal(t, null.FloatFrom(40), w.SentimentByWeekday.Mon)
	assert.False(t, w.SentimentByWeekday.Tue.Valid)
	assert.Equal(t, null.FloatFrom(60), w.SentimentByWeekday.Wed)
	assert.False(t, w.SentimentByWeekday.Fri.Valid)

	// weekend reading counts toward the average but not the snapshot
	require.True(t, w.SentimentAvg.Valid)
	assert.InDelta(t, 60.0, w.SentimentAvg.Float64, 1e-12)
	assert.Equal(t, day("2024-01-06"), w.WeekEnd)
	assert.Equal(t, 104.0, w.ClosePrice)
}

func TestAggregate_NoSentiment(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-01-01", 100, 101, 102, 99),
		rec("2024-01-02", 101, 102, 103, 100),
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.False(t, weeks[0].SentimentAvg.Valid)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	var records []model.DailyRecord
	start := day("2023-01-02")
	price := 100.0
	for i := 0; i < 200; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if i%17 == 0 {
			continue // drop a few days to create short weeks
		}
		next := price * (1 + float64(i%7-3)/100)
		records = append(records, model.DailyRecord{
			Date:  d,
			Open:  price,
			Close: next,
			High:  max(price, next) * 1.01,
			Low:   min(price, next) * 0.99,
		})
		price = next
	}

	want, err := Aggregate(records)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := make([]model.DailyRecord, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Aggregate(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAggregate_WeekValidity(t *testing.T) {
	records := []model.DailyRecord{
		rec("2024-03-04", 100, 101, 102, 99),
		rec("2024-03-05", 101, 102, 103, 100),
		rec("2024-03-11", 102, 103, 104, 101),
		rec("2024-03-18", 103, 104, 105, 102),
		rec("2024-03-22", 104, 105, 106, 103),
	}

	counts := make(map[[2]int]int)
	for _, r := range records {
		y, w := r.Date.ISOWeek()
		counts[[2]int{y, w}]++
	}

	weeks, err := Aggregate(records)
	require.NoError(t, err)

	emitted := make(map[[2]int]bool)
	for _, w := range weeks {
		k := [2]int{w.ISOYear, w.ISOWeek}
		emitted[k] = true
		assert.GreaterOrEqual(t, counts[k], MinTradingDays)
		assert.Equal(t, (w.ClosePrice-w.OpenPrice)/w.OpenPrice, w.WeeklyChange)
	}
	for k, n := range counts {
		assert.Equal(t, n >= MinTradingDays, emitted[k], "week %v", k)
	}
}

func TestFilterYears(t *testing.T) {
	weeks := []model.WeeklySummary{{ISOYear: 2020}, {ISOYear: 2021}, {ISOYear: 2022}}

	assert.Len(t, FilterYears(weeks, nil), 3)

	got := FilterYears(weeks, []int{2020, 2022})
	require.Len(t, got, 2)
	assert.Equal(t, 2020, got[0].ISOYear)
	assert.Equal(t, 2022, got[1].ISOYear)
}
