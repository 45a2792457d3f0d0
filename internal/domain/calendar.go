package domain

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD schedule date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	return t, nil
}

// WeekdayOf returns the lowercase weekday name of a schedule date.
func WeekdayOf(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return Weekdays[t.Weekday()], nil
}

// NormalizeWeekday lowercases and validates a weekday name.
func NormalizeWeekday(day string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(day))
	for _, w := range Weekdays {
		if w == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid weekday %q", day)
}

// Occurs reports whether the placement lands on the given date.
func (s RecurringSchedule) Occurs(date string) (bool, error) {
	t, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	switch s.Cadence {
	case CadenceWeekly:
		return s.DayOfWeek != nil && strings.EqualFold(*s.DayOfWeek, Weekdays[t.Weekday()]), nil
	case CadenceMonthly:
		return s.DayOfMonth != nil && *s.DayOfMonth == t.Day(), nil
	case CadenceQuarterly:
		if s.DayOfMonth == nil || *s.DayOfMonth != t.Day() {
			return false, nil
		}
		// Month is the month within the quarter (1..3); defaults to the first.
		within := 1
		if s.Month != nil {
			within = *s.Month
		}
		if (int(t.Month())-1)%3+1 != within {
			return false, nil
		}
		return s.Quarter == nil || *s.Quarter == (int(t.Month())-1)/3+1, nil
	case CadenceYearly:
		return s.Month != nil && s.DayOfMonth != nil && *s.Month == int(t.Month()) && *s.DayOfMonth == t.Day(), nil
	default:
		return false, fmt.Errorf("unknown cadence %q", s.Cadence)
	}
}
