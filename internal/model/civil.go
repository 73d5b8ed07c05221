package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the ISO calendar date format used on the wire.
	DateLayout = "2006-01-02"
	// ClockLayout is the wall-clock format the client writes.
	ClockLayout = "15:04"
)

var clockLayouts = []string{ClockLayout, "15:04:05"}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// ParseClock parses a wall-clock time. The result carries no zone
// semantics; only its time-of-day is meaningful.
func ParseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// FormatClock renders the time-of-day of t in local wall-clock form.
func FormatClock(t time.Time) string {
	return t.Format(ClockLayout)
}
