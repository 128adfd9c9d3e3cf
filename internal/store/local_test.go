package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/ccicube/internal/cube/cubetest"
	"github.com/rtm0/ccicube/internal/schema"
	"github.com/rtm0/ccicube/internal/store"
)

func newLocal(t *testing.T) *store.Local {
	t.Helper()
	dir := cubetest.WriteAll(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.nc"), []byte("not netcdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := store.NewLocal(logger, dir, store.WithID("esa-cci"), store.WithCache(store.NewCache(8)))
	require.NoError(t, err)
	return l
}

func TestLocalListAndSearch(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	ids, err := l.ListDataIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", cubetest.PermafrostID, cubetest.SoilMoistureID}, ids)

	refs, err := l.SearchData(ctx, store.Filter{Variable: "alt"})
	require.NoError(t, err)
	assert.Equal(t, []store.DataRef{{DataID: cubetest.PermafrostID, StoreID: "esa-cci"}}, refs)

	refs, err = l.SearchData(ctx, store.Filter{ECV: "soil moisture"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, cubetest.SoilMoistureID, refs[0].DataID)

	refs, err = l.SearchData(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = l.SearchData(ctx, store.Filter{Variable: "GTD"})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLocalDescribe(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	d, err := l.DescribeData(ctx, cubetest.PermafrostID)
	require.NoError(t, err)
	assert.Equal(t, cubetest.PermafrostID, d.DataID)
	assert.Equal(t, "dataset", d.DataType)
	assert.Equal(t, "EPSG:3995", d.CRS)
	assert.Equal(t, [2]string{"2003-01-01", "2006-01-01"}, d.TimeRange)
	assert.Equal(t, "P1Y", d.TimePeriod)
	assert.Equal(t, map[string]int{"time": 4, "y": 3, "x": 4}, d.Dims)
	assert.Equal(t, []string{"ALT", "PFR"}, d.VarNames())
	assert.Equal(t, "m", d.DataVars["ALT"].Attrs["units"])
	require.NotNil(t, d.BBox)
	assert.Equal(t, [4]float64{-2000, -1500, 2000, 1500}, *d.BBox)
	assert.Equal(t, 1000.0, d.SpatialRes)
	assert.Equal(t, []string{"normalize_data", "time_range", "variable_names"}, d.OpenParamsSchema.PropertyNames())

	again, err := l.DescribeData(ctx, cubetest.PermafrostID)
	require.NoError(t, err)
	assert.Same(t, d, again)

	sm, err := l.GetOpenDataParamsSchema(ctx, cubetest.SoilMoistureID)
	require.NoError(t, err)
	assert.True(t, sm.Accepts(schema.BBox))

	for _, id := range []string{"nope", "../etc/passwd", ""} {
		_, err = l.DescribeData(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
}

func TestLocalOpenData(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	ds, err := l.OpenData(ctx, cubetest.PermafrostID, schema.Params{
		"variable_names": []string{"ALT"},
		"time_range":     []string{"2004-01-01", "2005-12-31"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ALT"}, ds.VarNames())
	assert.Len(t, ds.Time, 2)

	_, err = l.OpenData(ctx, cubetest.PermafrostID, schema.Params{
		"variable_names": []string{"ALT"},
		"time_range":     []string{"2004-01-01", "2005-12-31"},
		"bbox":           []float64{-1000, -1000, 1000, 1000},
	})
	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, []string{"bbox"}, ve.Fields)

	sm, err := l.OpenData(ctx, cubetest.SoilMoistureID, schema.Params{
		"bbox":           []float64{-100, -5, 100, 15},
		"normalize_data": true,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10}, sm.Y.Values)
	assert.Equal(t, []float64{0, 90}, sm.X.Values)

	_, err = l.OpenData(ctx, "nope", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCacheDisabled(t *testing.T) {
	c := store.NewCache(0)
	c.Add(&store.DatasetDescriptor{DataID: "a"})
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	c = store.NewCache(1)
	c.Add(&store.DatasetDescriptor{DataID: "a"})
	c.Add(&store.DatasetDescriptor{DataID: "b"})
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}
