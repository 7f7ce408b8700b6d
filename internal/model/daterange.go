package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only textual date form used for keys and provider params.
const DateLayout = "2006-01-02"

// DefaultTimezone is the reference zone for "today".
const DefaultTimezone = "America/New_York"

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// CalendarDate truncates t to midnight of its calendar day, re-anchored in loc.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return CalendarDate(now.In(loc), loc)
}

// NewDateRange normalizes both ends to calendar dates in loc.
func NewDateRange(start, end time.Time, loc *time.Location) DateRange {
	return DateRange{Start: CalendarDate(start, loc), End: CalendarDate(end, loc)}
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Valid reports whether Start <= End.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Key returns the canonical "start:end" form.
func (r DateRange) Key() string {
	return r.Start.Format(DateLayout) + ":" + r.End.Format(DateLayout)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + " to " + r.End.Format(DateLayout)
}

// Contains reports whether the calendar date of t lies inside the range.
// Dates are compared by their YYYY-MM-DD form so zones never shift a day.
func (r DateRange) Contains(t time.Time) bool {
	d := t.Format(DateLayout)
	return d >= r.Start.Format(DateLayout) && d <= r.End.Format(DateLayout)
}
