package crawler

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateKey is a calendar date used both as the iteration cursor and as the
// storage partition key. The zero value is not a valid date.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDateKey normalizes the components through time.Date, so 2024-02-30
// becomes 2024-03-01.
func NewDateKey(year int, month time.Month, day int) DateKey {
	return DateKeyFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateKeyFromTime drops the clock part of t, keeping t's calendar date.
func DateKeyFromTime(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey{Year: y, Month: m, Day: d}
}

// ParseDateKey parses a YYYY-MM-DD string.
func ParseDateKey(raw string) (DateKey, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return DateKey{}, fmt.Errorf("%w: %q", ErrInvalidDateKey, raw)
	}
	return DateKeyFromTime(t), nil
}

// String renders the key as YYYY-MM-DD.
func (d DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero value.
func (d DateKey) IsZero() bool {
	return d == DateKey{}
}

// Time returns midnight UTC of the date.
func (d DateKey) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d DateKey) Compare(other DateKey) int {
	return d.Time().Compare(other.Time())
}

// Before reports whether d is strictly earlier than other.
func (d DateKey) Before(other DateKey) bool {
	return d.Compare(other) < 0
}

// After reports whether d is strictly later than other.
func (d DateKey) After(other DateKey) bool {
	return d.Compare(other) > 0
}

// AddDays returns the date n days away from d.
func (d DateKey) AddDays(n int) DateKey {
	return NewDateKey(d.Year, d.Month, d.Day+n)
}

// Step moves one day in the given direction.
func (d DateKey) Step(dir Direction) DateKey {
	if dir == Backward {
		return d.AddDays(-1)
	}
	return d.AddDays(1)
}

// Period returns the month that contains d.
func (d DateKey) Period() PeriodKey {
	return PeriodKey{Year: d.Year, Month: d.Month}
}

// PeriodKey groups dates by calendar month; index lookups are batched per
// period.
type PeriodKey struct {
	Year  int
	Month time.Month
}

// String renders the period as YYYY-MM.
func (p PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Days lists every date in the period in ascending order.
func (p PeriodKey) Days() []DateKey {
	first := NewDateKey(p.Year, p.Month, 1)
	out := make([]DateKey, 0, 31)
	for d := first; d.Period() == p; d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Direction controls which way the orchestrator walks the calendar.
type Direction string

// Supported iteration directions.
const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection accepts "forward" or "backward" in any case.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case Forward:
		return Forward, nil
	case Backward:
		return Backward, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want forward or backward)", raw)
	}
}

// passed reports whether cursor has moved beyond boundary when walking in dir.
func (dir Direction) passed(cursor, boundary DateKey) bool {
	if dir == Backward {
		return cursor.Before(boundary)
	}
	return cursor.After(boundary)
}
