package weather

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DayMillis is the length of one day in epoch milliseconds.
const DayMillis int64 = 24 * 60 * 60 * 1000

const dateLayout = "2006-01-02"

// Normalize truncates an epoch-millis timestamp to UTC midnight of the same day.
// Timestamps before the epoch are floored, not rounded toward zero.
func Normalize(ms int64) int64 {
	rem := ms % DayMillis
	if rem < 0 {
		rem += DayMillis
	}
	return ms - rem
}

// IsNormalized reports whether ms already sits on a UTC day boundary.
func IsNormalized(ms int64) bool {
	return Normalize(ms) == ms
}

// DateOf returns the normalized date key for t.
func DateOf(t time.Time) int64 {
	return Normalize(t.UnixMilli())
}

// TimeOf converts an epoch-millis value to a UTC time.
func TimeOf(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FormatDate renders a date key as YYYY-MM-DD.
func FormatDate(ms int64) string {
	return TimeOf(ms).Format(dateLayout)
}

// ParseDate accepts either YYYY-MM-DD or integer epoch millis. The result is
// returned as given; callers decide whether un-normalized values are an error.
func ParseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty date")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return 0, errors.New("invalid date format; use YYYY-MM-DD or epoch millis")
	}
	return t.UnixMilli(), nil
}
