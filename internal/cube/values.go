package cube

import (
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// flatten converts the nested slices returned by a VarGetter into a flat
// row-major []float64.
func flatten(v any) ([]float64, error) {
	var out []float64
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, rv.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(rv.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(rv.Uint()))
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
		}
		return nil
	}
	if err := walk(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}

// toFloat returns a numeric attribute as float64. Single-element slices are
// accepted.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() == 1 {
		rv = rv.Index(0)
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func attrMap(am api.AttributeMap) map[string]any {
	out := map[string]any{}
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

var packingAttrs = []string{"_FillValue", "missing_value", "scale_factor", "add_offset"}

// decodeCF applies _FillValue, missing_value, scale_factor and add_offset in
// place and drops those attributes.
func decodeCF(data []float64, attrs map[string]any) {
	scale, offset := 1.0, 0.0
	if f, ok := toFloat(attrs["scale_factor"]); ok {
		scale = f
	}
	if f, ok := toFloat(attrs["add_offset"]); ok {
		offset = f
	}
	var fills []float64
	for _, k := range []string{"_FillValue", "missing_value"} {
		if f, ok := toFloat(attrs[k]); ok && !math.IsNaN(f) {
			fills = append(fills, f)
		}
	}
	for i, raw := range data {
		missing := false
		for _, f := range fills {
			if raw == f {
				missing = true
				break
			}
		}
		if missing {
			data[i] = math.NaN()
			continue
		}
		data[i] = raw*scale + offset
	}
	for _, k := range packingAttrs {
		delete(attrs, k)
	}
}
