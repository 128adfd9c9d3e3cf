package cube

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ctessum/geom"
)

// Coord is a one-dimensional coordinate variable.
type Coord struct {
	Name   string
	Values []float64
	Attrs  map[string]any
}

// Len returns the number of coordinate values.
func (c Coord) Len() int { return len(c.Values) }

// Units returns the units attribute of the coordinate, if any.
func (c Coord) Units() string {
	s, _ := c.Attrs["units"].(string)
	return s
}

func (c Coord) clone() Coord {
	return Coord{Name: c.Name, Values: slices.Clone(c.Values), Attrs: cloneAttrs(c.Attrs)}
}

// Variable is a data variable laid out as time, y, x in row-major order.
// Missing values are NaN.
type Variable struct {
	Name  string
	DType string
	Attrs map[string]any
	Data  []float64
}

// Dataset is an in-memory cube with dimensions (time, y, x).
type Dataset struct {
	Attrs    map[string]any
	TimeName string
	Time     []time.Time
	Y, X     Coord
	vars     []*Variable
}

// New creates an empty dataset over the given coordinates.
func New(timeName string, ts []time.Time, y, x Coord) *Dataset {
	return &Dataset{
		Attrs:    map[string]any{},
		TimeName: timeName,
		Time:     ts,
		Y:        y,
		X:        x,
	}
}

// Shape returns the sizes of the time, y and x dimensions.
func (d *Dataset) Shape() (nt, ny, nx int) {
	return len(d.Time), d.Y.Len(), d.X.Len()
}

// Dims returns dimension sizes keyed by name.
func (d *Dataset) Dims() map[string]int {
	nt, ny, nx := d.Shape()
	return map[string]int{d.TimeName: nt, d.Y.Name: ny, d.X.Name: nx}
}

// AddVar appends a variable. Its data length must match the dataset shape.
func (d *Dataset) AddVar(v *Variable) error {
	nt, ny, nx := d.Shape()
	if len(v.Data) != nt*ny*nx {
		return fmt.Errorf("variable %q has %d values, want %d", v.Name, len(v.Data), nt*ny*nx)
	}
	if _, ok := d.Var(v.Name); ok {
		return fmt.Errorf("variable %q already present", v.Name)
	}
	if v.Attrs == nil {
		v.Attrs = map[string]any{}
	}
	d.vars = append(d.vars, v)
	return nil
}

// Var looks up a variable by name.
func (d *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range d.vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Vars returns the variables in insertion order.
func (d *Dataset) Vars() []*Variable {
	return d.vars
}

// VarNames returns the variable names in insertion order.
func (d *Dataset) VarNames() []string {
	names := make([]string, len(d.vars))
	for i, v := range d.vars {
		names[i] = v.Name
	}
	return names
}

// TimeRange returns the first and last timestamps.
func (d *Dataset) TimeRange() (time.Time, time.Time) {
	if len(d.Time) == 0 {
		return time.Time{}, time.Time{}
	}
	return d.Time[0], d.Time[len(d.Time)-1]
}

// Bounds returns the spatial extent of the coordinate centres.
func (d *Dataset) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, x := range []float64{first(d.X.Values), last(d.X.Values)} {
		for _, y := range []float64{first(d.Y.Values), last(d.Y.Values)} {
			b.Extend(geom.NewBoundsPoint(geom.Point{X: x, Y: y}))
		}
	}
	return b
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (d *Dataset) Summary() []any {
	nt, ny, nx := d.Shape()
	start, end := d.TimeRange()
	return []any{
		"dims", []string{d.TimeName, d.Y.Name, d.X.Name},
		"vars", d.VarNames(),
		"timeCnt", nt,
		"yCnt", ny,
		"xCnt", nx,
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
	}
}

// Slice is a 2-D field of one variable at one time step, row-major over y
// then x.
type Slice struct {
	Name     string
	LongName string
	Units    string
	Time     time.Time
	Y, X     Coord
	Z        []float64
}

// Slice extracts the field of variable name at time index t.
func (d *Dataset) Slice(name string, t int) (*Slice, error) {
	v, ok := d.Var(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	nt, ny, nx := d.Shape()
	if t < 0 || t >= nt {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", t, nt)
	}
	n := ny * nx
	s := &Slice{
		Name: v.Name,
		Time: d.Time[t],
		Y:    d.Y.clone(),
		X:    d.X.clone(),
		Z:    slices.Clone(v.Data[t*n : (t+1)*n]),
	}
	s.LongName, _ = v.Attrs["long_name"].(string)
	s.Units, _ = v.Attrs["units"].(string)
	return s, nil
}

// At returns the value at column xi and row yi.
func (s *Slice) At(xi, yi int) float64 {
	return s.Z[yi*s.X.Len()+xi]
}

// Range returns the minimum and maximum of the non-NaN values. Both are NaN
// when every value is missing.
func (s *Slice) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, z := range s.Z {
		if math.IsNaN(z) {
			continue
		}
		lo = math.Min(lo, z)
		hi = math.Max(hi, z)
	}
	if math.IsInf(lo, 1) {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

// Merge combines the variables of datasets sharing identical coordinates.
func Merge(ds ...*Dataset) (*Dataset, error) {
	if len(ds) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", ErrEmptySelection)
	}
	base := ds[0]
	out := New(base.TimeName, slices.Clone(base.Time), base.Y.clone(), base.X.clone())
	out.Attrs = cloneAttrs(base.Attrs)
	for _, d := range ds {
		if !slices.EqualFunc(d.Time, base.Time, time.Time.Equal) ||
			!slices.Equal(d.Y.Values, base.Y.Values) ||
			!slices.Equal(d.X.Values, base.X.Values) {
			return nil, ErrMismatch
		}
		for _, v := range d.vars {
			if err := out.AddVar(v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func cloneAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[0]
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[len(v)-1]
}
