package domain

import (
	"math"
	"time"
)

// AddMonths advances t by n calendar months. The month field moves, the year
// rolls over as needed, and the day of month is clamped to the length of the
// target month, so Jan 31 + 1 month is Feb 28 (or 29). Time of day and
// location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ValidTimes projects lead offsets in months onto calendar valid times:
// V[i] = init + months(trunc(leads[i])). Fractional offsets are truncated
// toward zero, so a 0.5-month lead lands on the initialization date.
// Offsets are expected to be strictly increasing after truncation; Build
// rejects a cube where they are not.
func ValidTimes(init time.Time, leads []float64) []time.Time {
	out := make([]time.Time, len(leads))
	for i, l := range leads {
		out[i] = AddMonths(init, int(math.Trunc(l)))
	}
	return out
}
