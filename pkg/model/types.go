package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// Candle represents a single daily OHLCV bar as delivered by a provider or the store
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Ticker represents a tracked instrument
type Ticker struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Crypto bool   `json:"crypto"` // trades 7 days a week
}

// SentimentPoint is one daily Fear & Greed reading
type SentimentPoint struct {
	Date           time.Time `json:"date"`
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
}

// DailyRecord is the normalized per-day input of the aggregation engine
type DailyRecord struct {
	Date      time.Time  `json:"date"`
	Open      float64    `json:"open_price"`
	Close     float64    `json:"close_price"`
	High      float64    `json:"high_price"`
	Low       float64    `json:"low_price"`
	Sentiment null.Float `json:"sentiment_score"` // 0-100, optional
}

// Change returns the open-to-close ratio of the day
func (r DailyRecord) Change() float64 {
	return (r.Close - r.Open) / r.Open
}

// WeekdaySentiment holds the sentiment snapshot of a week, Monday to Friday
type WeekdaySentiment struct {
	Mon null.Float `json:"mon"`
	Tue null.Float `json:"tue"`
	Wed null.Float `json:"wed"`
	Thu null.Float `json:"thu"`
	Fri null.Float `json:"fri"`
}

// Set stores a score for a weekday. Weekend days are ignored.
func (w *WeekdaySentiment) Set(day time.Weekday, score null.Float) {
	switch day {
	case time.Monday:
		w.Mon = score
	case time.Tuesday:
		w.Tue = score
	case time.Wednesday:
		w.Wed = score
	case time.Thursday:
		w.Thu = score
	case time.Friday:
		w.Fri = score
	}
}

// Get returns the score for a weekday, invalid for weekends
func (w WeekdaySentiment) Get(day time.Weekday) null.Float {
	switch day {
	case time.Monday:
		return w.Mon
	case time.Tuesday:
		return w.Tue
	case time.Wednesday:
		return w.Wed
	case time.Thursday:
		return w.Thu
	case time.Friday:
		return w.Fri
	}
	return null.Float{}
}

// WeeklySummary aggregates the trading days of one ISO week
type WeeklySummary struct {
	ISOYear            int              `json:"iso_year"`
	ISOWeek            int              `json:"iso_week"`
	Month              int              `json:"month"` // month of the first trading day
	WeekStart          time.Time        `json:"week_start_date"`
	WeekEnd            time.Time        `json:"week_end_date"`
	OpenPrice          float64          `json:"open_price"`
	ClosePrice         float64          `json:"close_price"`
	WeeklyChange       float64          `json:"weekly_change"`
	IntraweekHigh      float64          `json:"intraweek_high"`
	IntraweekLow       float64          `json:"intraweek_low"`
	HighExcursion      float64          `json:"high_excursion"`
	LowExcursion       float64          `json:"low_excursion"`
	MaxExcursion       float64          `json:"max_excursion"`
	SentimentByWeekday WeekdaySentiment `json:"sentiment_by_weekday"`
	SentimentAvg       null.Float       `json:"sentiment_avg"`
}

// TotalYear is the pseudo-year of the rows aggregating every year
const TotalYear = "Total"

// BucketRow is one cell of the year x bucket distribution table
type BucketRow struct {
	Year       string  `json:"year"` // calendar year or TotalYear
	Bucket     string  `json:"bucket"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Granularity selects which change ratio feeds the bucket table
type Granularity string

const (
	Daily  Granularity = "daily"
	Weekly Granularity = "weekly"
)

// BreachLevel rates how close a week's excursion came to a threshold
type BreachLevel string

const (
	BreachSafe      BreachLevel = "safe"
	BreachCloseCall BreachLevel = "close_call"
	BreachBreached  BreachLevel = "breach"
)

// GridWeek is one cell of the 52-week calendar grid
type GridWeek struct {
	WeeklySummary
	Breach BreachLevel `json:"breach"`
}

// TickerOverview summarizes a ticker for the landing view
type TickerOverview struct {
	Ticker      Ticker    `json:"ticker"`
	Days        int       `json:"days"`
	Weeks       int       `json:"weeks"`
	FirstDate   time.Time `json:"first_date"`
	LatestDate  time.Time `json:"latest_date"`
	LatestClose float64   `json:"latest_close"`
	LastWeek    *GridWeek `json:"last_week,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// RefreshResult reports an incremental data update for one ticker
type RefreshResult struct {
	RunID      string    `json:"run_id"`
	Ticker     string    `json:"ticker"`
	Status     string    `json:"status"` // success, up_to_date, no_data, failed
	Message    string    `json:"message"`
	Inserted   int       `json:"new_records"`
	Updated    int       `json:"updated_records"`
	LatestDate string    `json:"latest_date,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
