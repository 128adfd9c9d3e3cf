// Package cubetest writes small NetCDF fixtures shaped like ESA CCI products.
package cubetest

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/require"
)

const (
	// PermafrostID names a yearly permafrost product on a polar stereographic grid.
	PermafrostID = "esacci.PERMAFROST.yr.L4.ALT.multi-sensor.multi-platform.MODISLST_CRYOGRID.03-0.r1"
	// SoilMoistureID names a daily soil moisture product on a lat/lon grid.
	SoilMoistureID = "esacci.SOILMOISTURE.day.L3S.SSMV.multi-sensor.multi-platform.COMBINED.v08.1"

	// PermafrostFill is the raw fill value of ALT.
	PermafrostFill = int16(-32768)
	// PermafrostScale is the scale_factor of ALT.
	PermafrostScale = 0.01
)

var (
	// PermafrostYears are the time steps of the permafrost fixture, one per
	// year starting on January 1st.
	PermafrostYears = []int{2003, 2004, 2005, 2006}
	// PermafrostY is the descending projected y coordinate in metres.
	PermafrostY = []float64{1000, 0, -1000}
	// PermafrostX is the projected x coordinate in metres.
	PermafrostX = []float64{-1500, -500, 500, 1500}

	// SoilMoistureStart is the first day of the soil moisture fixture.
	SoilMoistureStart = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	// SoilMoistureDays is the number of daily time steps.
	SoilMoistureDays = 3
	// SoilMoistureLat is the descending latitude coordinate.
	SoilMoistureLat = []float64{10, 0, -10}
	// SoilMoistureLon uses 0..360 longitudes.
	SoilMoistureLon = []float64{0, 90, 180, 270}
)

// PermafrostRaw is the packed ALT value at the given indices. The first cell
// holds the fill value.
func PermafrostRaw(t, y, x int) int16 {
	if t == 0 && y == 0 && x == 0 {
		return PermafrostFill
	}
	return int16(1000 + 100*t + 10*y + x)
}

// PermafrostALT is the decoded ALT value in metres, NaN for the fill cell.
func PermafrostALT(t, y, x int) float64 {
	raw := PermafrostRaw(t, y, x)
	if raw == PermafrostFill {
		return math.NaN()
	}
	return float64(raw) * PermafrostScale
}

// SoilMoisture is the sm value at the given indices; the last longitude of
// the southern row is missing.
func SoilMoisture(t, y, x int) float64 {
	if y == 2 && x == 3 {
		return math.NaN()
	}
	return float64(float32(0.1*float64(t) + 0.01*float64(y) + 0.001*float64(x)))
}

// WriteAll writes both fixtures into a fresh temporary directory and returns
// it.
func WriteAll(t testing.TB) string {
	dir := t.TempDir()
	WritePermafrost(t, dir)
	WriteSoilMoisture(t, dir)
	return dir
}

// WritePermafrost writes the permafrost fixture into dir and returns its path.
func WritePermafrost(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, PermafrostID+".nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	addGlobals(t, cw, map[string]any{
		"title":         "ESA CCI Permafrost active layer thickness",
		"ecv":           "PERMAFROST",
		"institution":   "University of Oslo",
		"crs":           "EPSG:3995",
		"time_coverage": "P1Y",
	})

	days := make([]int32, len(PermafrostYears))
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, y := range PermafrostYears {
		days[i] = int32(time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).Sub(epoch).Hours() / 24)
	}
	addVar(t, cw, "time", days, []string{"time"}, map[string]any{"units": "days since 1970-01-01", "standard_name": "time"})
	addVar(t, cw, "y", PermafrostY, []string{"y"}, map[string]any{"units": "m", "standard_name": "projection_y_coordinate"})
	addVar(t, cw, "x", PermafrostX, []string{"x"}, map[string]any{"units": "m", "standard_name": "projection_x_coordinate"})

	alt := make([][][]int16, len(PermafrostYears))
	for ti := range alt {
		alt[ti] = make([][]int16, len(PermafrostY))
		for yi := range alt[ti] {
			alt[ti][yi] = make([]int16, len(PermafrostX))
			for xi := range alt[ti][yi] {
				alt[ti][yi][xi] = PermafrostRaw(ti, yi, xi)
			}
		}
	}
	addVar(t, cw, "ALT", alt, []string{"time", "y", "x"}, map[string]any{
		"long_name":    "active layer thickness",
		"units":        "m",
		"scale_factor": float32(PermafrostScale),
		"_FillValue":   PermafrostFill,
	})
	pfr := make([][][]float32, len(PermafrostYears))
	for ti := range pfr {
		pfr[ti] = make([][]float32, len(PermafrostY))
		for yi := range pfr[ti] {
			pfr[ti][yi] = make([]float32, len(PermafrostX))
			for xi := range pfr[ti][yi] {
				pfr[ti][yi][xi] = float32(10 * (yi + xi))
			}
		}
	}
	addVar(t, cw, "PFR", pfr, []string{"time", "y", "x"}, map[string]any{
		"long_name": "permafrost extent",
		"units":     "%",
	})
	require.NoError(t, cw.Close())
	return path
}

// WriteSoilMoisture writes the soil moisture fixture into dir and returns
// its path. Its time axis uses ERA5 style "hours since 1900".
func WriteSoilMoisture(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, SoilMoistureID+".nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	addGlobals(t, cw, map[string]any{
		"title": "ESA CCI Soil Moisture",
		"ecv":   "SOIL MOISTURE",
	})
	ref := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	hours := make([]int32, SoilMoistureDays)
	for i := range hours {
		hours[i] = int32(SoilMoistureStart.AddDate(0, 0, i).Sub(ref).Hours())
	}
	addVar(t, cw, "time", hours, []string{"time"}, map[string]any{"units": "hours since 1900-01-01 00:00:00"})
	addVar(t, cw, "lat", SoilMoistureLat, []string{"lat"}, map[string]any{"units": "degrees_north"})
	addVar(t, cw, "lon", SoilMoistureLon, []string{"lon"}, map[string]any{"units": "degrees_east"})

	sm := make([][][]float32, SoilMoistureDays)
	for ti := range sm {
		sm[ti] = make([][]float32, len(SoilMoistureLat))
		for yi := range sm[ti] {
			sm[ti][yi] = make([]float32, len(SoilMoistureLon))
			for xi := range sm[ti][yi] {
				sm[ti][yi][xi] = float32(SoilMoisture(ti, yi, xi))
			}
		}
	}
	addVar(t, cw, "sm", sm, []string{"time", "lat", "lon"}, map[string]any{
		"long_name": "volumetric soil moisture",
		"units":     "m3 m-3",
	})
	require.NoError(t, cw.Close())
	return path
}

func addGlobals(t testing.TB, cw *cdf.CDFWriter, attrs map[string]any) {
	t.Helper()
	require.NoError(t, cw.AddGlobalAttrs(ordered(t, attrs)))
}

func addVar(t testing.TB, cw *cdf.CDFWriter, name string, values any, dims []string, attrs map[string]any) {
	t.Helper()
	require.NoError(t, cw.AddVar(name, api.Variable{
		Values:     values,
		Dimensions: dims,
		Attributes: ordered(t, attrs),
	}))
}

func ordered(t testing.TB, attrs map[string]any) api.AttributeMap {
	t.Helper()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	om, err := util.NewOrderedMap(keys, attrs)
	require.NoError(t, err)
	return om
}
