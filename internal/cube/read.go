package cube

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/geom"
)

// VarInfo describes a data variable without its values.
type VarInfo struct {
	Name  string
	DType string
	Dims  []string
	Attrs map[string]any
}

// Info describes the grid and data variables of a NetCDF file. Only the
// coordinate variables are read.
type Info struct {
	Attrs    map[string]any
	TimeName string
	Time     []time.Time
	Y, X     Coord
	Vars     []VarInfo
	CRS      string
}

// VarNames returns the names of the data variables.
func (in *Info) VarNames() []string {
	names := make([]string, len(in.Vars))
	for i, v := range in.Vars {
		names[i] = v.Name
	}
	return names
}

// Geographic reports whether the grid is on latitude/longitude coordinates.
func (in *Info) Geographic() bool {
	switch strings.ToUpper(in.CRS) {
	case "WGS84", "EPSG:4326", "OGC:CRS84", "CRS84":
		return true
	case "":
		return isLat(in.Y.Name) && isLon(in.X.Name)
	}
	return false
}

// ReadOptions select the part of a file that Read loads.
type ReadOptions struct {
	// Vars lists the variables to read. Empty means all.
	Vars []string
	// TimeMin and TimeMax bound the time axis inclusively. Zero values leave
	// the corresponding side open.
	TimeMin, TimeMax time.Time
	// BBox selects grid cells whose centres fall inside it.
	BBox *geom.Bounds
	// Normalize applies Normalize to the result.
	Normalize bool
}

// Inspect reads the header and coordinates of the NetCDF file at path.
func Inspect(path string) (*Info, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()
	return inspect(nc)
}

func inspect(nc api.Group) (*Info, error) {
	info := &Info{Attrs: attrMap(nc.Attributes())}
	var grid []string
	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		dims := vg.Dimensions()
		if len(dims) != 3 || !numeric(vg.GoType()) || name == dims[0] {
			continue
		}
		if grid == nil {
			grid = dims
		}
		if !slices.Equal(dims, grid) {
			continue
		}
		attrs := attrMap(vg.Attributes())
		info.Vars = append(info.Vars, VarInfo{
			Name:  name,
			DType: storedType(vg.GoType(), attrs),
			Dims:  slices.Clone(dims),
			Attrs: attrs,
		})
	}
	if grid == nil {
		return nil, ErrNoGrid
	}

	info.TimeName = grid[0]
	tv, tattrs, err := coordValues(nc, grid[0])
	if err != nil {
		return nil, err
	}
	units, _ := tattrs["units"].(string)
	if info.Time, err = decodeTimes(tv, units); err != nil {
		return nil, err
	}
	for i, c := range []*Coord{&info.Y, &info.X} {
		name := grid[i+1]
		vals, attrs, err := coordValues(nc, name)
		if err != nil {
			return nil, err
		}
		if !monotonic(vals) {
			return nil, fmt.Errorf("%w: coordinate %q is not strictly monotonic", ErrNoGrid, name)
		}
		*c = Coord{Name: name, Values: vals, Attrs: attrs}
	}
	info.CRS = detectCRS(nc, info)
	return info, nil
}

func coordValues(nc api.Group, name string) ([]float64, map[string]any, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: coordinate %q: %v", ErrNoGrid, name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, nil, err
	}
	vals, err := flatten(v)
	if err != nil {
		return nil, nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	return vals, attrMap(vg.Attributes()), nil
}

var crsAttrs = []string{"crs_wkt", "spatial_ref", "proj4", "proj4text", "epsg_code", "grid_mapping_name"}

func detectCRS(nc api.Group, info *Info) string {
	for _, v := range info.Vars {
		gm, ok := v.Attrs["grid_mapping"].(string)
		if !ok {
			continue
		}
		vg, err := nc.GetVarGetter(gm)
		if err != nil {
			continue
		}
		attrs := attrMap(vg.Attributes())
		for _, k := range crsAttrs {
			if s, ok := attrs[k].(string); ok && s != "" {
				return s
			}
		}
	}
	for _, k := range []string{"crs", "spatial_ref", "geospatial_bounds_crs"} {
		if s, ok := info.Attrs[k].(string); ok && s != "" {
			return s
		}
	}
	if isLat(info.Y.Name) && isLon(info.X.Name) {
		return "WGS84"
	}
	return ""
}

// Read loads the part of the NetCDF file at path selected by opts.
func Read(ctx context.Context, path string, opts ReadOptions) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	info, err := inspect(nc)
	if err != nil {
		return nil, err
	}
	names := opts.Vars
	if len(names) == 0 {
		names = info.VarNames()
	}
	for _, n := range names {
		if !slices.Contains(info.VarNames(), n) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, n)
		}
	}

	t0, t1, ok := timeWindow(info.Time, opts.TimeMin, opts.TimeMax)
	if !ok {
		return nil, fmt.Errorf("%w: no time steps between %s and %s", ErrEmptySelection,
			opts.TimeMin.Format(time.DateOnly), opts.TimeMax.Format(time.DateOnly))
	}
	y0, y1, x0, x1 := 0, info.Y.Len(), 0, info.X.Len()
	if b := opts.BBox; b != nil {
		var okY, okX bool
		y0, y1, okY = window(info.Y.Values, b.Min.Y, b.Max.Y)
		x0, x1, okX = window(info.X.Values, b.Min.X, b.Max.X)
		if !okY || !okX {
			return nil, fmt.Errorf("%w: bbox [%g, %g, %g, %g] does not intersect the grid",
				ErrEmptySelection, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
		}
	}

	ds := New(info.TimeName, slices.Clone(info.Time[t0:t1]),
		Coord{Name: info.Y.Name, Values: slices.Clone(info.Y.Values[y0:y1]), Attrs: info.Y.Attrs},
		Coord{Name: info.X.Name, Values: slices.Clone(info.X.Values[x0:x1]), Attrs: info.X.Attrs})
	ds.Attrs = info.Attrs

	ny, nx := info.Y.Len(), info.X.Len()
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vg, err := nc.GetVarGetter(n)
		if err != nil {
			return nil, err
		}
		raw, err := vg.GetSlice(int64(t0), int64(t1))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", n, err)
		}
		vals, err := flatten(raw)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", n, err)
		}
		if len(vals) != (t1-t0)*ny*nx {
			return nil, fmt.Errorf("read %q: got %d values, want %d", n, len(vals), (t1-t0)*ny*nx)
		}
		data := crop(vals, t1-t0, ny, nx, y0, y1, x0, x1)
		attrs := attrMap(vg.Attributes())
		dtype := storedType(vg.GoType(), attrs)
		decodeCF(data, attrs)
		if err := ds.AddVar(&Variable{Name: n, DType: dtype, Attrs: attrs, Data: data}); err != nil {
			return nil, err
		}
	}
	if opts.Normalize {
		Normalize(ds)
	}
	return ds, nil
}

func crop(data []float64, nt, ny, nx, y0, y1, x0, x1 int) []float64 {
	if y0 == 0 && y1 == ny && x0 == 0 && x1 == nx {
		return data
	}
	out := make([]float64, 0, nt*(y1-y0)*(x1-x0))
	for t := 0; t < nt; t++ {
		for y := y0; y < y1; y++ {
			row := (t*ny + y) * nx
			out = append(out, data[row+x0:row+x1]...)
		}
	}
	return out
}

// monotonic reports whether vals strictly increase or strictly decrease.
func monotonic(vals []float64) bool {
	if len(vals) < 2 {
		return true
	}
	up := vals[1] > vals[0]
	for i := 1; i < len(vals); i++ {
		if d := vals[i] - vals[i-1]; (up && !(d > 0)) || (!up && !(d < 0)) {
			return false
		}
	}
	return true
}

// storedType returns the type a variable had before Write widened it to
// float64, and removes the attribute recording it.
func storedType(goType string, attrs map[string]any) string {
	s, ok := attrs[dtypeAttr].(string)
	delete(attrs, dtypeAttr)
	if ok && s != "" {
		return s
	}
	return goType
}

// window returns the index range of the values within [lo, hi]. vals must be
// strictly monotonic.
func window(vals []float64, lo, hi float64) (int, int, bool) {
	start, end := -1, -1
	for i, v := range vals {
		if v >= lo && v <= hi {
			if start < 0 {
				start = i
			}
			end = i + 1
		}
	}
	return start, end, start >= 0
}

func timeWindow(ts []time.Time, lo, hi time.Time) (int, int, bool) {
	start, end := -1, -1
	for i, t := range ts {
		if (!lo.IsZero() && t.Before(lo)) || (!hi.IsZero() && t.After(hi)) {
			continue
		}
		if start < 0 {
			start = i
		}
		end = i + 1
	}
	return start, end, start >= 0
}

func numeric(goType string) bool {
	switch goType {
	case "float32", "float64", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64", "byte":
		return true
	}
	return false
}
