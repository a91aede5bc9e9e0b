package netcdf

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

var referenceLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-1-2 15:4:5",
	"2006-01-02",
	"2006-1-2",
}

// decodeTime converts a CF time value such as 780 with units
// "months since 1960-01-01" into a UTC timestamp. Months and years follow
// the calendar; whole months are added first and any fraction is spread
// over the length of the month that follows.
func decodeTime(value float64, units string) (time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return time.Time{}, fmt.Errorf("time units %q: want \"<unit> since <date>\"", units)
	}
	base, err := parseReference(strings.TrimSpace(ref))
	if err != nil {
		return time.Time{}, err
	}

	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "years", "year", "yr":
		return addFractionalMonths(base, value*12), nil
	case "months", "month", "mon":
		return addFractionalMonths(base, value), nil
	case "days", "day", "d":
		return base.Add(time.Duration(value * float64(24*time.Hour))), nil
	case "hours", "hour", "hr", "h":
		return base.Add(time.Duration(value * float64(time.Hour))), nil
	case "minutes", "minute", "min":
		return base.Add(time.Duration(value * float64(time.Minute))), nil
	case "seconds", "second", "sec", "s":
		return base.Add(time.Duration(value * float64(time.Second))), nil
	default:
		return time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}
}

func parseReference(s string) (time.Time, error) {
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("time reference %q: unrecognized date", s)
}

func addFractionalMonths(base time.Time, months float64) time.Time {
	whole := math.Floor(months)
	t := domain.AddMonths(base, int(whole))
	if frac := months - whole; frac > 0 {
		next := domain.AddMonths(t, 1)
		t = t.Add(time.Duration(frac * float64(next.Sub(t))))
	}
	return t
}

// encodeTime is the inverse of decodeTime for the two layouts Write emits.
func encodeTime(t time.Time) (float64, string) {
	t = t.UTC()
	if t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		months := (t.Year()-1960)*12 + int(t.Month()-time.January)
		return float64(months), "months since 1960-01-01"
	}
	return t.Sub(epoch).Hours() / 24, "days since 1960-01-01"
}

var epoch = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)
