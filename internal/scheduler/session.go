package scheduler

import (
	"fmt"
	"time"
)

// Session is the regular NYSE/NASDAQ trading session in US Eastern time
type Session struct {
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
	Location  *time.Location
}

// DefaultSession returns the 09:30-16:00 ET session
func DefaultSession() Session {
	return Session{OpenHour: 9, OpenMin: 30, CloseHour: 16, CloseMin: 0, Location: eastern()}
}

func eastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Session states
const (
	StateOpen       = "open"
	StatePreMarket  = "pre-market"
	StateAfterHours = "after-hours"
	StateWeekend    = "weekend"
	StateHoliday    = "holiday"
)

// Status reports the session state at now
type Status struct {
	State string
	Now   time.Time // in session time
}

// Open reports whether the regular session is trading
func (s Status) Open() bool { return s.State == StateOpen }

// TradingDay reports whether the day produces an equity bar
func (s Status) TradingDay() bool {
	return s.State != StateWeekend && s.State != StateHoliday
}

// Status returns the session state at now
func (s Session) Status(now time.Time) Status {
	now = now.In(s.Location)
	st := Status{Now: now}

	switch {
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		st.State = StateWeekend
		return st
	case IsHoliday(now):
		st.State = StateHoliday
		return st
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes < s.OpenHour*60+s.OpenMin:
		st.State = StatePreMarket
	case minutes >= s.CloseHour*60+s.CloseMin:
		st.State = StateAfterHours
	default:
		st.State = StateOpen
	}
	return st
}

// FormatDuration prints d as "1h 5m" or "5m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// full-day NYSE closures
var holidays = map[string]bool{
	"2024-01-01": true, "2024-01-15": true, "2024-02-19": true, "2024-03-29": true,
	"2024-05-27": true, "2024-06-19": true, "2024-07-04": true, "2024-09-02": true,
	"2024-11-28": true, "2024-12-25": true,

	"2025-01-01": true, "2025-01-09": true, "2025-01-20": true, "2025-02-17": true,
	"2025-04-18": true, "2025-05-26": true, "2025-06-19": true, "2025-07-04": true,
	"2025-09-01": true, "2025-11-27": true, "2025-12-25": true,

	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true, "2026-04-03": true,
	"2026-05-25": true, "2026-06-19": true, "2026-07-03": true, "2026-09-07": true,
	"2026-11-26": true, "2026-12-25": true,
}

// IsHoliday reports whether the calendar day of t is an exchange holiday
func IsHoliday(t time.Time) bool {
	return holidays[t.Format("2006-01-02")]
}
