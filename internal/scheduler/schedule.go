// Package scheduler decides which (event, camera) pairs should be streaming
// and drives the extraction service accordingly.
package scheduler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/data"
)

// ParseWeekDays accepts the two encodings found in event rows: a JSON array
// (`["monday","friday"]`) or a bare comma list (`monday,friday`). Day names
// are normalized to lowercase.
func ParseWeekDays(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var days []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &days); err != nil {
			return nil
		}
	} else {
		days = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// WithinWindow reports whether now's local HH:MM lies inside the inclusive
// [start, end] window. The stored values are time-of-day strings, not
// timestamps; comparing them lexically against the formatted clock is exact
// for zero-padded HH:MM. A window with end before start spans midnight.
func WithinWindow(start, end string, now time.Time) bool {
	current := now.Format("15:04")
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// ShouldBeActive evaluates an event's schedule against the local clock.
// Misconfigured schedules (weekly without weekDays, once without a date,
// unknown recurrence) evaluate to inactive rather than erroring.
func ShouldBeActive(e *data.Event, now time.Time) bool {
	if !e.IsActive {
		return false
	}

	if e.StartTime != nil && e.EndTime != nil {
		if !WithinWindow(*e.StartTime, *e.EndTime, now) {
			return false
		}
	}

	switch e.RecurrenceType {
	case data.RecurrenceOnce:
		if e.ScheduledDate == nil {
			return false
		}
		sy, sm, sd := e.ScheduledDate.Local().Date()
		ny, nm, nd := now.Date()
		return sy == ny && sm == nm && sd == nd
	case data.RecurrenceDaily:
		return true
	case data.RecurrenceWeekly:
		if e.WeekDays == nil {
			return false
		}
		today := strings.ToLower(now.Weekday().String())
		for _, d := range ParseWeekDays(*e.WeekDays) {
			if d == today {
				return true
			}
		}
		return false
	case data.RecurrenceMonthly:
		// Documented but not implemented.
		return false
	default:
		return false
	}
}
