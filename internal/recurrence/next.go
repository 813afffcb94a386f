package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock firing time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// DailyRule returns the rule for a plain every-day recurrence.
func DailyRule() Rule {
	return Rule{Freq: Daily, Interval: 1}
}

// epochBase anchors interval counting. 2001-01-01 is a Monday, which keeps
// week arithmetic aligned with ISO weeks.
var epochBase = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func epochDays(t time.Time) int {
	utcMidnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(utcMidnight.Sub(epochBase).Hours() / 24)
}

func epochMonths(t time.Time) int {
	return (t.Year()-2001)*12 + int(t.Month()) - 1
}

// NextAfter returns the first occurrence of the rule strictly after now,
// firing at the given time of day. The scan runs in now's location.
// Recurring rules always have a future occurrence; the scan is bounded but
// the bound (eight years) is past any representable interval.
func NextAfter(r Rule, at TimeOfDay, now time.Time) (time.Time, bool) {
	if r.Interval < 1 {
		r.Interval = 1
	}

	base := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, now.Location())

	const maxDays = 8 * 366
	for i := 0; i <= maxDays; i++ {
		candidate := base.AddDate(0, 0, i)
		if !candidate.After(now) {
			continue
		}
		if r.matches(candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func (r Rule) matches(c time.Time) bool {
	switch r.Freq {
	case Daily:
		return r.Interval <= 1 || epochDays(c)%r.Interval == 0

	case Weekly:
		if len(r.ByDay) > 0 {
			if !containsDay(r.ByDay, c.Weekday()) {
				return false
			}
		} else if c.Weekday() != time.Monday {
			return false
		}
		return r.Interval <= 1 || (epochDays(c)/7)%r.Interval == 0

	case Monthly:
		day := r.ByMonthDay
		if day == 0 {
			day = 1
		}
		// Short months fire on their last day instead of skipping.
		if last := daysInMonth(c.Year(), c.Month()); day > last {
			day = last
		}
		if c.Day() != day {
			return false
		}
		return r.Interval <= 1 || epochMonths(c)%r.Interval == 0

	case Yearly:
		month := r.ByMonth
		if month == 0 {
			month = time.January
		}
		day := r.ByMonthDay
		if day == 0 {
			day = 1
		}
		if last := daysInMonth(c.Year(), month); day > last {
			day = last
		}
		if c.Month() != month || c.Day() != day {
			return false
		}
		return r.Interval <= 1 || (c.Year()-2001)%r.Interval == 0
	}
	return false
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
