package cube

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnits is the encoding used when writing time coordinates.
const TimeUnits = "hours since 1970-01-01 00:00:00"

var refLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04",
	"2006-1-2 15:4:5",
	time.DateOnly,
	"2006-1-2",
}

// parseTimeUnits parses CF time units of the form "<unit> since <date>".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing %q", units, "since")
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range refLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: cannot parse reference date %q", units, ref)
}

func decodeTimes(vals []float64, units string) ([]time.Time, error) {
	step, ref, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	ts := make([]time.Time, len(vals))
	for i, v := range vals {
		// Round to the second to absorb float error in day based units.
		secs := math.Round(v * step.Seconds())
		ts[i] = ref.Add(time.Duration(secs) * time.Second)
	}
	return ts, nil
}

func encodeTimes(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = float64(t.Unix()) / 3600
	}
	return out
}
