package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ctessum/geom"
)

// OpenParams are validated open parameters in typed form.
type OpenParams struct {
	VariableNames []string
	// Start and End bound the time axis inclusively; zero values are open.
	Start, End    time.Time
	BBox          *geom.Bounds
	Normalize     bool
}

// Decode converts params, which must already have passed Validate, into
// OpenParams. The end date of time_range covers the whole day.
func Decode(params Params) (*OpenParams, error) {
	var raw struct {
		VariableNames []string  `json:"variable_names"`
		TimeRange     []string  `json:"time_range"`
		BBox          []float64 `json:"bbox"`
		NormalizeData bool      `json:"normalize_data"`
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	op := &OpenParams{VariableNames: raw.VariableNames, Normalize: raw.NormalizeData}
	if len(raw.TimeRange) == 2 {
		if op.Start, err = parseDate(raw.TimeRange[0]); err != nil {
			return nil, err
		}
		if op.End, err = parseDate(raw.TimeRange[1]); err != nil {
			return nil, err
		}
		op.End = op.End.Add(24*time.Hour - time.Nanosecond)
		if op.End.Before(op.Start) {
			return nil, fmt.Errorf("%w: time_range end %s is before start %s",
				ErrInvalidParams, raw.TimeRange[1], raw.TimeRange[0])
		}
	}
	if len(raw.BBox) == 4 {
		op.BBox = &geom.Bounds{
			Min: geom.Point{X: raw.BBox[0], Y: raw.BBox[1]},
			Max: geom.Point{X: raw.BBox[2], Y: raw.BBox[3]},
		}
		if op.BBox.Empty() {
			return nil, fmt.Errorf("%w: bbox %v has min greater than max", ErrInvalidParams, raw.BBox)
		}
	}
	return op, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidParams, s)
	}
	return t, nil
}

// Encode is the inverse of Decode for parameters built in code.
func Encode(op *OpenParams) Params {
	p := Params{}
	if len(op.VariableNames) > 0 {
		p[VariableNames] = op.VariableNames
	}
	if !op.Start.IsZero() && !op.End.IsZero() {
		p[TimeRange] = []string{op.Start.Format(time.DateOnly), op.End.Format(time.DateOnly)}
	}
	if op.BBox != nil {
		p[BBox] = []float64{op.BBox.Min.X, op.BBox.Min.Y, op.BBox.Max.X, op.BBox.Max.Y}
	}
	if op.Normalize {
		p[NormalizeData] = true
	}
	return p
}
