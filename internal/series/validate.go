// Package series validates and merges the daily record streams fed to the aggregation engine.
package series

import (
	"fmt"
	"math"
	"time"

	"weekgrid/pkg/model"
)

// DateLayout is the calendar-day format used for record identity
const DateLayout = "2006-01-02"

// DataQualityError reports a daily record that cannot be used as input.
// The whole ticker is rejected when one is found.
type DataQualityError struct {
	Date   time.Time
	Field  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s %s: %s", e.Date.Format(DateLayout), e.Field, e.Reason)
}

// Day truncates t to its calendar day in UTC, keeping the local date
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Validate checks every record and fails on the first bad one
func Validate(records []model.DailyRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := validatePrice(r.Date, "open_price", r.Open); err != nil {
			return err
		}
		if err := validatePrice(r.Date, "close_price", r.Close); err != nil {
			return err
		}
		if err := validatePrice(r.Date, "high_price", r.High); err != nil {
			return err
		}
		if err := validatePrice(r.Date, "low_price", r.Low); err != nil {
			return err
		}
		if r.Sentiment.Valid {
			s := r.Sentiment.Float64
			if math.IsNaN(s) || s < 0 || s > 100 {
				return &DataQualityError{Date: r.Date, Field: "sentiment_score", Reason: fmt.Sprintf("%v outside 0-100", s)}
			}
		}

		key := r.Date.Format(DateLayout)
		if _, dup := seen[key]; dup {
			return &DataQualityError{Date: r.Date, Field: "date", Reason: "duplicate date"}
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validatePrice(date time.Time, field string, v float64) error {
	switch {
	case math.IsNaN(v):
		return &DataQualityError{Date: date, Field: field, Reason: "missing"}
	case math.IsInf(v, 0):
		return &DataQualityError{Date: date, Field: field, Reason: "not finite"}
	case v <= 0:
		return &DataQualityError{Date: date, Field: field, Reason: fmt.Sprintf("must be positive, got %v", v)}
	}
	return nil
}
