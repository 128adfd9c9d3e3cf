package store

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/schema"
)

// VariableDescriptor describes a coordinate or data variable.
type VariableDescriptor struct {
	Name  string         `json:"name"`
	DType string         `json:"dtype"`
	Dims  []string       `json:"dims"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// DatasetDescriptor holds the metadata of a dataset and the schema of its
// open parameters.
type DatasetDescriptor struct {
	DataID           string                        `json:"data_id"`
	DataType         string                        `json:"data_type"`
	CRS              string                        `json:"crs,omitempty"`
	BBox             *[4]float64                   `json:"bbox,omitempty"`
	SpatialRes       float64                       `json:"spatial_res,omitempty"`
	TimeRange        [2]string                     `json:"time_range"`
	TimePeriod       string                        `json:"time_period,omitempty"`
	Dims             map[string]int                `json:"dims"`
	Coords           map[string]VariableDescriptor `json:"coords"`
	DataVars         map[string]VariableDescriptor `json:"data_vars"`
	Attrs            map[string]any                `json:"attrs,omitempty"`
	OpenParamsSchema *schema.Schema                `json:"open_params_schema"`
}

// VarNames returns the data variable names in sorted order.
func (d *DatasetDescriptor) VarNames() []string {
	names := make([]string, 0, len(d.DataVars))
	for n := range d.DataVars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe builds the descriptor of a dataset from its file header.
func Describe(dataID string, info *cube.Info) *DatasetDescriptor {
	d := &DatasetDescriptor{
		DataID:   dataID,
		DataType: "dataset",
		CRS:      info.CRS,
		Dims: map[string]int{
			info.TimeName: len(info.Time),
			info.Y.Name:   info.Y.Len(),
			info.X.Name:   info.X.Len(),
		},
		Coords: map[string]VariableDescriptor{
			info.TimeName: {Name: info.TimeName, DType: "datetime", Dims: []string{info.TimeName}},
			info.Y.Name:   coordDescriptor(info.Y),
			info.X.Name:   coordDescriptor(info.X),
		},
		DataVars: map[string]VariableDescriptor{},
		Attrs:    jsonAttrs(info.Attrs),
	}
	for _, v := range info.Vars {
		d.DataVars[v.Name] = VariableDescriptor{Name: v.Name, DType: v.DType, Dims: v.Dims, Attrs: jsonAttrs(v.Attrs)}
	}
	if len(info.Time) > 0 {
		d.TimeRange = [2]string{
			info.Time[0].Format(time.DateOnly),
			info.Time[len(info.Time)-1].Format(time.DateOnly),
		}
		d.TimePeriod = timePeriod(info.Time)
	}
	if info.Y.Len() > 0 && info.X.Len() > 0 {
		xr, yr := halfStep(info.X.Values), halfStep(info.Y.Values)
		xmin, xmax := minMax(info.X.Values)
		ymin, ymax := minMax(info.Y.Values)
		d.BBox = &[4]float64{xmin - xr, ymin - yr, xmax + xr, ymax + yr}
		d.SpatialRes = 2 * xr
	}
	d.OpenParamsSchema = schema.ForDataset(info.VarNames(), info.Geographic())
	return d
}

func coordDescriptor(c cube.Coord) VariableDescriptor {
	return VariableDescriptor{Name: c.Name, DType: "float64", Dims: []string{c.Name}, Attrs: jsonAttrs(c.Attrs)}
}

// jsonAttrs drops attribute values JSON cannot represent, such as NaN fill
// values.
func jsonAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, err := json.Marshal(v); err == nil {
			out[k] = v
		}
	}
	return out
}

func halfStep(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	return math.Abs(v[1]-v[0]) / 2
}

func minMax(v []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return lo, hi
}

// timePeriod guesses an ISO 8601 period from the first time step.
func timePeriod(ts []time.Time) string {
	if len(ts) < 2 {
		return ""
	}
	a, b := ts[0], ts[1]
	switch {
	case a.AddDate(1, 0, 0).Equal(b):
		return "P1Y"
	case a.AddDate(0, 1, 0).Equal(b):
		return "P1M"
	case a.AddDate(0, 0, 1).Equal(b):
		return "P1D"
	case b.Sub(a) == time.Hour:
		return "PT1H"
	}
	return ""
}
