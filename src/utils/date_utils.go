package utils

import (
	"strings"
	"time"
)

const (
	ISODateFormat    = "2006-01-02"
	BrokerDateFormat = "02-01-2006"
)

var dateLayouts = []string{ISODateFormat, BrokerDateFormat, time.RFC3339, "2006-01-02 15:04:05"}

// ParseDate parses an ISO, broker (DD-MM-YYYY) or RFC3339 date string.
// It returns the zero time if no layout matches.
func ParseDate(dateStr string) time.Time {
	s := strings.TrimSpace(dateStr)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NormalizeDate rewrites any accepted date string as YYYY-MM-DD. Unparseable
// input is returned unchanged.
func NormalizeDate(dateStr string) string {
	t := ParseDate(dateStr)
	if t.IsZero() {
		return dateStr
	}
	return t.Format(ISODateFormat)
}

// TruncateDay drops the clock part of t, keeping its calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from "from" to "to".
// It is negative when "to" is before "from".
func DaysBetween(from, to time.Time) int {
	return int(TruncateDay(to).Sub(TruncateDay(from)).Hours() / 24)
}

// DaysHeld returns the calendar days between buyDate and now, never negative.
// An unparseable buy date yields 0.
func DaysHeld(buyDate string, now time.Time) int {
	t := ParseDate(buyDate)
	if t.IsZero() {
		return 0
	}
	if d := DaysBetween(t, now); d > 0 {
		return d
	}
	return 0
}
