package cube

import (
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// dtypeAttr holds the source type of a variable that Write stored as float64.
const dtypeAttr = "source_dtype"

// Write stores the dataset at path as a NetCDF file. Times are encoded in
// TimeUnits and variables as float64 with NaN for missing values.
func Write(path string, d *Dataset) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	global, err := orderedAttrs(d.Attrs)
	if err != nil {
		return err
	}
	if err := cw.AddGlobalAttrs(global); err != nil {
		return err
	}

	timeAttrs, err := orderedAttrs(map[string]any{"units": TimeUnits, "standard_name": "time"})
	if err != nil {
		return err
	}
	if err := cw.AddVar(d.TimeName, api.Variable{
		Values:     encodeTimes(d.Time),
		Dimensions: []string{d.TimeName},
		Attributes: timeAttrs,
	}); err != nil {
		return fmt.Errorf("write %q: %w", d.TimeName, err)
	}
	for _, c := range []Coord{d.Y, d.X} {
		attrs, err := orderedAttrs(c.Attrs)
		if err != nil {
			return err
		}
		if err := cw.AddVar(c.Name, api.Variable{
			Values:     c.Values,
			Dimensions: []string{c.Name},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("write %q: %w", c.Name, err)
		}
	}

	nt, ny, nx := d.Shape()
	dims := []string{d.TimeName, d.Y.Name, d.X.Name}
	for _, v := range d.vars {
		va := cloneAttrs(v.Attrs)
		if v.DType != "" && v.DType != "float64" {
			va[dtypeAttr] = v.DType
		}
		attrs, err := orderedAttrs(va)
		if err != nil {
			return err
		}
		if err := cw.AddVar(v.Name, api.Variable{
			Values:     nest(v.Data, nt, ny, nx),
			Dimensions: dims,
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("write %q: %w", v.Name, err)
		}
	}
	return nil
}

func nest(data []float64, nt, ny, nx int) [][][]float64 {
	out := make([][][]float64, nt)
	for t := range out {
		out[t] = make([][]float64, ny)
		for y := range out[t] {
			off := (t*ny + y) * nx
			out[t][y] = slices.Clone(data[off : off+nx])
		}
	}
	return out
}

func orderedAttrs(m map[string]any) (api.AttributeMap, error) {
	keys := make([]string, 0, len(m))
	vals := make(map[string]any, len(m))
	for k, v := range m {
		if w, ok := writableAttr(v); ok {
			keys = append(keys, k)
			vals[k] = w
		}
	}
	sort.Strings(keys)
	om, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, err
	}
	return om, nil
}

// writableAttr converts attribute values to types the classic NetCDF format
// can store. Values it cannot store are dropped.
func writableAttr(v any) (any, bool) {
	switch v := v.(type) {
	case string:
		return v, v != ""
	case int8, int16, int32, []int8, []int16, []int32, []float32, []float64:
		return v, true
	case float32:
		return v, !math.IsNaN(float64(v))
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return int32(v), true
	case int64:
		return float64(v), true
	case uint8:
		return int16(v), true
	case uint16:
		return int32(v), true
	case bool:
		if v {
			return int8(1), true
		}
		return int8(0), true
	case []string:
		return strings.Join(v, " "), len(v) > 0
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		fs := make([]float64, 0, len(v))
		ss := make([]string, 0, len(v))
		for _, e := range v {
			switch e := e.(type) {
			case float64:
				fs = append(fs, e)
			case string:
				ss = append(ss, e)
			}
		}
		if len(fs) == len(v) {
			return fs, true
		}
		if len(ss) == len(v) {
			return strings.Join(ss, " "), true
		}
	}
	return nil, false
}
