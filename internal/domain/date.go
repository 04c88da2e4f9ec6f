package domain

import "time"

// DateLayout is the calendar-date format used on the wire
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day in t's own location
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day, each read in its own location
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// ParseDate parses a YYYY-MM-DD string into a calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}

// IsWeekend reports whether the calendar day of t is a Saturday or Sunday
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// withinWindow reports whether the calendar day of t lies in [start, end].
// A nil bound is open.
func withinWindow(t time.Time, start, end *time.Time) bool {
	day := DateOnly(t)
	if start != nil && day.Before(DateOnly(*start)) {
		return false
	}
	if end != nil && day.After(DateOnly(*end)) {
		return false
	}
	return true
}
