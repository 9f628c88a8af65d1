// Package calendar supplies wall-clock time and the local day and month
// boundaries used by usage accounting.
package calendar

import (
	"time"

	"github.com/coder/quartz"
)

// Source pairs a clock with the location day boundaries are computed in.
type Source struct {
	clock quartz.Clock
	loc   *time.Location
}

// NewSource returns a Source. A nil clock uses the real clock and a nil
// location uses time.Local.
func NewSource(clock quartz.Clock, loc *time.Location) *Source {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Source{clock: clock, loc: loc}
}

// Now returns the current time in the source's location.
func (s *Source) Now() time.Time {
	return s.clock.Now("calendar", "now").In(s.loc)
}

// Location returns the location day boundaries are computed in.
func (s *Source) Location() *time.Location {
	return s.loc
}

// FromMillis converts epoch milliseconds into the source's location.
func (s *Source) FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(s.loc)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the next month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// PreviousDayInMonth returns the start of the most recent occurrence of
// day-of-month day that is not after now. Days past the end of a month
// clamp to that month's last day. day is clamped into 1..31.
func PreviousDayInMonth(now time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	} else if day > 31 {
		day = 31
	}

	loc := now.Location()
	y, m, _ := now.Date()

	candidate := time.Date(y, m, min(day, DaysIn(y, m, loc)), 0, 0, 0, 0, loc)
	if !candidate.After(now) {
		return candidate
	}

	py, pm, _ := time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0).Date()
	return time.Date(py, pm, min(day, DaysIn(py, pm, loc)), 0, 0, 0, 0, loc)
}

// UTCOffsetHours returns t's offset from UTC in hours.
func UTCOffsetHours(t time.Time) float64 {
	_, offset := t.Zone()
	return float64(offset) / float64(time.Hour/time.Second)
}
