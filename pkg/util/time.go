package util

import (
	"strconv"
	"time"
)

// unix timestamps above this are taken as milliseconds (year 2286 in seconds)
const millisThreshold = 1e10

// ParseTime accepts RFC3339 with optional fractional seconds, or a unix
// timestamp in seconds or milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n > millisThreshold {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// ParseTimeDefault is ParseTime with a fallback for empty or invalid input.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
