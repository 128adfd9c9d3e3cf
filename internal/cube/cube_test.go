package cube_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/cube/cubetest"
)

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := cubetest.WritePermafrost(t, dir)

	info, err := cube.Inspect(path)
	require.NoError(t, err)

	assert.Equal(t, "time", info.TimeName)
	assert.Equal(t, "y", info.Y.Name)
	assert.Equal(t, "x", info.X.Name)
	assert.Equal(t, cubetest.PermafrostY, info.Y.Values)
	assert.Equal(t, cubetest.PermafrostX, info.X.Values)
	assert.Equal(t, []string{"ALT", "PFR"}, info.VarNames())
	assert.Equal(t, "EPSG:3995", info.CRS)
	assert.False(t, info.Geographic())
	assert.Equal(t, "PERMAFROST", info.Attrs["ecv"])
	require.Len(t, info.Time, len(cubetest.PermafrostYears))
	for i, y := range cubetest.PermafrostYears {
		assert.Equal(t, time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), info.Time[i])
	}
}

func TestInspectGeographic(t *testing.T) {
	path := cubetest.WriteSoilMoisture(t, t.TempDir())

	info, err := cube.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "WGS84", info.CRS)
	assert.True(t, info.Geographic())
	assert.Equal(t, cubetest.SoilMoistureStart, info.Time[0])
	assert.Equal(t, cubetest.SoilMoistureStart.AddDate(0, 0, 2), info.Time[2])
}

func TestReadAll(t *testing.T) {
	path := cubetest.WritePermafrost(t, t.TempDir())

	ds, err := cube.Read(context.Background(), path, cube.ReadOptions{})
	require.NoError(t, err)

	nt, ny, nx := ds.Shape()
	assert.Equal(t, []int{4, 3, 4}, []int{nt, ny, nx})
	assert.Equal(t, []string{"ALT", "PFR"}, ds.VarNames())

	alt, ok := ds.Var("ALT")
	require.True(t, ok)
	assert.NotContains(t, alt.Attrs, "scale_factor")
	assert.NotContains(t, alt.Attrs, "_FillValue")
	assert.Equal(t, "m", alt.Attrs["units"])
	for ti := 0; ti < nt; ti++ {
		for yi := 0; yi < ny; yi++ {
			for xi := 0; xi < nx; xi++ {
				got := alt.Data[(ti*ny+yi)*nx+xi]
				want := cubetest.PermafrostALT(ti, yi, xi)
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got), "fill cell should decode to NaN")
					continue
				}
				assert.InDelta(t, want, got, 1e-6)
			}
		}
	}
}

func TestReadSubset(t *testing.T) {
	path := cubetest.WritePermafrost(t, t.TempDir())

	ds, err := cube.Read(context.Background(), path, cube.ReadOptions{
		Vars:    []string{"ALT"},
		TimeMin: time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeMax: time.Date(2005, 12, 31, 23, 59, 59, 0, time.UTC),
		BBox:    &geom.Bounds{Min: geom.Point{X: -600, Y: -10}, Max: geom.Point{X: 600, Y: 1500}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ALT"}, ds.VarNames())
	assert.Equal(t, []float64{1000, 0}, ds.Y.Values)
	assert.Equal(t, []float64{-500, 500}, ds.X.Values)
	start, end := ds.TimeRange()
	assert.Equal(t, 2004, start.Year())
	assert.Equal(t, 2005, end.Year())

	alt, _ := ds.Var("ALT")
	require.Len(t, alt.Data, 2*2*2)
	// time 2004 (index 1), y index 0, x index 1.
	assert.InDelta(t, cubetest.PermafrostALT(1, 0, 1), alt.Data[0], 1e-6)
	// time 2005 (index 2), y index 1, x index 2.
	assert.InDelta(t, cubetest.PermafrostALT(2, 1, 2), alt.Data[7], 1e-6)
}

func TestReadErrors(t *testing.T) {
	path := cubetest.WritePermafrost(t, t.TempDir())
	ctx := context.Background()

	_, err := cube.Read(ctx, path, cube.ReadOptions{Vars: []string{"GTD"}})
	assert.ErrorIs(t, err, cube.ErrUnknownVariable)

	_, err = cube.Read(ctx, path, cube.ReadOptions{TimeMin: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.ErrorIs(t, err, cube.ErrEmptySelection)

	_, err = cube.Read(ctx, path, cube.ReadOptions{
		BBox: &geom.Bounds{Min: geom.Point{X: 5000, Y: 5000}, Max: geom.Point{X: 6000, Y: 6000}},
	})
	assert.ErrorIs(t, err, cube.ErrEmptySelection)

	_, err = cube.Read(ctx, filepath.Join(t.TempDir(), "missing.nc"), cube.ReadOptions{})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = cube.Read(cancelled, path, cube.ReadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	path := cubetest.WriteSoilMoisture(t, t.TempDir())

	ds, err := cube.Read(context.Background(), path, cube.ReadOptions{Normalize: true})
	require.NoError(t, err)

	assert.Equal(t, "lat", ds.Y.Name)
	assert.Equal(t, "lon", ds.X.Name)
	assert.Equal(t, []float64{-10, 0, 10}, ds.Y.Values)
	assert.Equal(t, []float64{-180, -90, 0, 90}, ds.X.Values)

	s, err := ds.Slice("sm", 1)
	require.NoError(t, err)
	// lat -10 was row 2, lon -180 was column 2.
	assert.Equal(t, cubetest.SoilMoisture(1, 2, 2), s.At(0, 0))
	// lat 10 was row 0, lon 90 was column 1.
	assert.Equal(t, cubetest.SoilMoisture(1, 0, 1), s.At(3, 2))
	// lat -10, lon -90 was the missing cell.
	assert.True(t, math.IsNaN(s.At(1, 0)))
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src, err := cube.Read(context.Background(), cubetest.WritePermafrost(t, dir), cube.ReadOptions{Vars: []string{"ALT"}})
	require.NoError(t, err)

	out := filepath.Join(dir, "subset.nc")
	require.NoError(t, cube.Write(out, src))

	got, err := cube.Read(context.Background(), out, cube.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, src.Time, got.Time)
	assert.Equal(t, src.Y.Values, got.Y.Values)
	assert.Equal(t, src.X.Values, got.X.Values)
	assert.Equal(t, "PERMAFROST", got.Attrs["ecv"])

	want, _ := src.Var("ALT")
	have, ok := got.Var("ALT")
	require.True(t, ok)
	assert.Equal(t, "int16", have.DType)
	assert.NotContains(t, have.Attrs, "source_dtype")
	require.Len(t, have.Data, len(want.Data))
	for i := range want.Data {
		if math.IsNaN(want.Data[i]) {
			assert.True(t, math.IsNaN(have.Data[i]))
			continue
		}
		assert.Equal(t, want.Data[i], have.Data[i])
	}

	info, err := cube.Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, "int16", info.Vars[0].DType)
}

func TestReadRejectsNonMonotonicAxis(t *testing.T) {
	ds := cube.New("time", []time.Time{time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)},
		cube.Coord{Name: "lat", Values: []float64{10, 0}},
		cube.Coord{Name: "lon", Values: []float64{0, 10, 5, 20}})
	require.NoError(t, ds.AddVar(&cube.Variable{Name: "sm", DType: "float64", Data: make([]float64, 8)}))
	path := filepath.Join(t.TempDir(), "unsorted.nc")
	require.NoError(t, cube.Write(path, ds))

	_, err := cube.Inspect(path)
	assert.ErrorIs(t, err, cube.ErrNoGrid)

	_, err = cube.Read(context.Background(), path, cube.ReadOptions{
		BBox: &geom.Bounds{Min: geom.Point{X: 0, Y: -90}, Max: geom.Point{X: 6, Y: 90}},
	})
	assert.ErrorIs(t, err, cube.ErrNoGrid)
}

func TestSlice(t *testing.T) {
	ds, err := cube.Read(context.Background(), cubetest.WritePermafrost(t, t.TempDir()), cube.ReadOptions{})
	require.NoError(t, err)

	s, err := ds.Slice("ALT", 3)
	require.NoError(t, err)
	assert.Equal(t, "active layer thickness", s.LongName)
	assert.Equal(t, "m", s.Units)
	assert.Equal(t, 2006, s.Time.Year())
	assert.InDelta(t, cubetest.PermafrostALT(3, 2, 1), s.At(1, 2), 1e-6)

	lo, hi := s.Range()
	assert.InDelta(t, cubetest.PermafrostALT(3, 0, 0), lo, 1e-6)
	assert.InDelta(t, cubetest.PermafrostALT(3, 2, 3), hi, 1e-6)

	_, err = ds.Slice("ALT", 4)
	assert.Error(t, err)
	_, err = ds.Slice("nope", 0)
	assert.ErrorIs(t, err, cube.ErrUnknownVariable)
}

func TestMerge(t *testing.T) {
	path := cubetest.WritePermafrost(t, t.TempDir())
	ctx := context.Background()
	a, err := cube.Read(ctx, path, cube.ReadOptions{Vars: []string{"ALT"}})
	require.NoError(t, err)
	b, err := cube.Read(ctx, path, cube.ReadOptions{Vars: []string{"PFR"}})
	require.NoError(t, err)

	m, err := cube.Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALT", "PFR"}, m.VarNames())

	c, err := cube.Read(ctx, path, cube.ReadOptions{Vars: []string{"PFR"}, TimeMin: time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = cube.Merge(a, c)
	assert.ErrorIs(t, err, cube.ErrMismatch)

	_, err = cube.Merge(a, a)
	assert.Error(t, err)
}

func TestAddVarShape(t *testing.T) {
	ds := cube.New("time", []time.Time{time.Unix(0, 0)},
		cube.Coord{Name: "y", Values: []float64{0, 1}},
		cube.Coord{Name: "x", Values: []float64{0, 1, 2}})
	assert.Error(t, ds.AddVar(&cube.Variable{Name: "v", Data: make([]float64, 5)}))
	assert.NoError(t, ds.AddVar(&cube.Variable{Name: "v", Data: make([]float64, 6)}))
	assert.Equal(t, map[string]int{"time": 1, "y": 2, "x": 3}, ds.Dims())
}
