package series

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekgrid/pkg/model"
)

func d(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func good(date string) model.DailyRecord {
	return model.DailyRecord{Date: d(date), Open: 10, Close: 11, High: 12, Low: 9}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *model.DailyRecord)
		field string
	}{
		{"zero open", func(r *model.DailyRecord) { r.Open = 0 }, "open_price"},
		{"negative open", func(r *model.DailyRecord) { r.Open = -1 }, "open_price"},
		{"missing close", func(r *model.DailyRecord) { r.Close = math.NaN() }, "close_price"},
		{"infinite high", func(r *model.DailyRecord) { r.High = math.Inf(1) }, "high_price"},
		{"zero low", func(r *model.DailyRecord) { r.Low = 0 }, "low_price"},
		{"sentiment over 100", func(r *model.DailyRecord) { r.Sentiment = null.FloatFrom(101) }, "sentiment_score"},
		{"negative sentiment", func(r *model.DailyRecord) { r.Sentiment = null.FloatFrom(-1) }, "sentiment_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good("2024-01-02")
			tt.edit(&r)
			err := Validate([]model.DailyRecord{good("2024-01-01"), r})

			var dq *DataQualityError
			require.ErrorAs(t, err, &dq)
			assert.Equal(t, tt.field, dq.Field)
			assert.Equal(t, d("2024-01-02"), dq.Date)
		})
	}
}

func TestValidate_OK(t *testing.T) {
	r := good("2024-01-02")
	r.Sentiment = null.FloatFrom(100)
	assert.NoError(t, Validate([]model.DailyRecord{good("2024-01-01"), r}))
	assert.NoError(t, Validate(nil))
}

func TestValidate_Duplicate(t *testing.T) {
	err := Validate([]model.DailyRecord{good("2024-01-01"), good("2024-01-01")})
	var dq *DataQualityError
	require.ErrorAs(t, err, &dq)
	assert.Contains(t, dq.Error(), "2024-01-01 date: duplicate date")
}

func TestDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	got := Day(time.Date(2024, 3, 5, 23, 30, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)
}

func TestMergeSentiment(t *testing.T) {
	records := []model.DailyRecord{good("2024-01-03"), good("2024-01-01"), good("2024-01-02")}
	points := []model.SentimentPoint{
		{Date: d("2024-01-01"), Value: 25},
		{Date: d("2024-01-03"), Value: 70},
		{Date: d("2024-01-09"), Value: 50},
	}

	left := MergeSentiment(records, points, false)
	require.Len(t, left, 3)
	assert.Equal(t, d("2024-01-01"), left[0].Date)
	assert.Equal(t, null.FloatFrom(25), left[0].Sentiment)
	assert.False(t, left[1].Sentiment.Valid)
	assert.Equal(t, null.FloatFrom(70), left[2].Sentiment)

	inner := MergeSentiment(records, points, true)
	require.Len(t, inner, 2)
	assert.Equal(t, d("2024-01-03"), inner[1].Date)
}

func TestFromCandles(t *testing.T) {
	candles := []model.Candle{{Time: time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), Open: 1, High: 3, Low: 0.5, Close: 2}}
	got := FromCandles(candles)
	require.Len(t, got, 1)
	assert.Equal(t, d("2024-01-02"), got[0].Date)
	assert.Equal(t, 2.0, got[0].Close)
	assert.False(t, got[0].Sentiment.Valid)
}

func TestFilterYears(t *testing.T) {
	records := []model.DailyRecord{good("2020-12-31"), good("2021-01-01")}
	got := FilterYears(records, []int{2021})
	require.Len(t, got, 1)
	assert.Equal(t, 2021, got[0].Date.Year())
	assert.Len(t, FilterYears(records, nil), 2)
}
