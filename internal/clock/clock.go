// internal/clock/clock.go
package clock

import (
	"fmt"
	"strings"
	"time"
)

const (
	isoDateLayout   = "2006-01-02"
	timeOfDayLayout = "15:04"
)

// Clock is the source of "now" for the scheduling engine.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.Local
	}
	return System{Location: loc}
}

func (s System) Now() time.Time {
	return time.Now().In(s.Location)
}

// Fixed always returns the same instant. Used by tests and one-off tools.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// Today truncates now to local midnight, keeping its location.
func Today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatISODate renders d as YYYY-MM-DD.
func FormatISODate(d time.Time) string {
	return d.Format(isoDateLayout)
}

// ParseISODate parses YYYY-MM-DD as local midnight in loc.
func ParseISODate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(isoDateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DayOfWeek returns 0 (Sunday) through 6 (Saturday).
func DayOfWeek(d time.Time) int {
	return int(d.Weekday())
}

// ParseTimeOfDay validates a strict HH:MM string and returns hour and minute.
func ParseTimeOfDay(s string) (int, int, error) {
	if len(s) != len(timeOfDayLayout) {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Combine places the HH:MM wall-clock time on date, in date's location.
func Combine(date time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location()), nil
}

// FormatLongDate renders "Friday, Oct 16".
func FormatLongDate(d time.Time) string {
	return d.Format("Monday, Jan 2")
}

// FormatClock renders an HH:MM string as "2:00 PM". Unparseable input is returned as is.
func FormatClock(hhmm string) string {
	h, m, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return hhmm
	}
	return time.Date(2000, 1, 1, h, m, 0, 0, time.UTC).Format("3:04 PM")
}

// ParseWeekday accepts English weekday names ("friday", "Fri") or 0-6.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if len(v) == 1 && v[0] >= '0' && v[0] <= '6' {
		return time.Weekday(v[0] - '0'), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || (len(v) >= 3 && strings.HasPrefix(name, v)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
