package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/cube/cubetest"
	"github.com/rtm0/ccicube/internal/remote"
	"github.com/rtm0/ccicube/internal/schema"
	"github.com/rtm0/ccicube/internal/store"
)

// run executes the CLI against the local store rooted at dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CCICUBE_CONFIG", "")
	var out bytes.Buffer
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--store", "local", "--data-dir", dir}, args...))
	err := execute(context.Background(), cmd, a)
	return out.String(), err
}

func TestStoresCmd(t *testing.T) {
	out, err := run(t, t.TempDir(), "stores")
	require.NoError(t, err)
	assert.Contains(t, out, "esa-cci")
	assert.Contains(t, out, "local")
}

func TestUnknownStore(t *testing.T) {
	_, err := run(t, t.TempDir(), "list", "--store", "ftp")
	assert.ErrorIs(t, err, store.ErrUnknownStore)
}

func TestCatalogCmds(t *testing.T) {
	dir := cubetest.WriteAll(t)

	out, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Equal(t, cubetest.PermafrostID+"\n"+cubetest.SoilMoistureID+"\n", out)

	out, err = run(t, dir, "search", "--ecv", "permafrost")
	require.NoError(t, err)
	assert.Equal(t, "local\t"+cubetest.PermafrostID+"\n", out)

	out, err = run(t, dir, "describe", cubetest.PermafrostID)
	require.NoError(t, err)
	var d store.DatasetDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "EPSG:3995", d.CRS)
	assert.Equal(t, "P1Y", d.TimePeriod)

	out, err = run(t, dir, "schema", cubetest.SoilMoistureID)
	require.NoError(t, err)
	var s schema.Schema
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, []string{schema.BBox, schema.NormalizeData, schema.TimeRange, schema.VariableNames}, s.PropertyNames())

	_, err = run(t, dir, "describe", "esacci.NOTHING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenAndPlotCmds(t *testing.T) {
	dir := cubetest.WriteAll(t)
	nc := filepath.Join(t.TempDir(), "alt.nc")

	out, err := run(t, dir, "open", cubetest.PermafrostID,
		"--var", "ALT", "--time-range", "2005-01-01,2006-12-31", "--output", nc)
	require.NoError(t, err)
	assert.Contains(t, out, "time:      2005-01-01 .. 2006-01-01")
	assert.Contains(t, out, "variable:  ALT")

	info, err := cube.Inspect(nc)
	require.NoError(t, err)
	assert.Len(t, info.Time, 2)
	assert.Equal(t, []string{"ALT"}, info.VarNames())

	_, err = run(t, dir, "open", cubetest.PermafrostID, "--bbox", "-20,40,20,80")
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{schema.BBox}, ve.Fields)

	img := filepath.Join(t.TempDir(), "alt.png")
	_, err = run(t, dir, "plot", "--input", nc, "--time-index", "1", "--colormap", "kindlmann", "--output", img)
	require.NoError(t, err)
	f, err := os.Open(img)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 8*96, cfg.Width)

	img2 := filepath.Join(t.TempDir(), "sm.jpg")
	_, err = run(t, dir, "plot", cubetest.SoilMoistureID, "--var", "sm", "--bbox", "0,-10,180,10", "--normalize", "--output", img2)
	require.NoError(t, err)
	assert.FileExists(t, img2)

	_, err = run(t, dir, "plot", "--output", img)
	assert.Error(t, err)
}

func TestWalkthroughCmd(t *testing.T) {
	dir := cubetest.WriteAll(t)
	img := filepath.Join(t.TempDir(), "walk.png")

	out, err := run(t, dir, "walkthrough", "--output", img)
	require.NoError(t, err)
	assert.Contains(t, out, "local\t"+cubetest.PermafrostID)
	assert.Contains(t, out, "open params: normalize_data, time_range, variable_names")
	assert.Contains(t, out, "rejected: ")
	assert.Contains(t, out, "does not declare bbox")
	assert.Contains(t, out, "time:      2003-01-01 .. 2006-01-01")
	assert.FileExists(t, img)

	out, err = run(t, dir, "walkthrough", cubetest.SoilMoistureID, "--variable", "sm",
		"--time-range", "2010-01-01,2010-01-02", "--bbox", "0,-10,90,10")
	require.NoError(t, err)
	assert.NotContains(t, out, "rejected")
	assert.Contains(t, out, "dims:      time=2 lat=3 lon=2")
}

func TestRemoteStoreCmd(t *testing.T) {
	local, err := store.NewLocal(slog.New(slog.NewTextHandler(io.Discard, nil)), cubetest.WriteAll(t))
	require.NoError(t, err)
	srv := httptest.NewServer(remote.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), local, nil))
	defer srv.Close()

	out, err := run(t, t.TempDir(), "search", "--store", "esa-cci", "--endpoint", srv.URL, "--variable", "sm")
	require.NoError(t, err)
	assert.Equal(t, "esa-cci\t"+cubetest.SoilMoistureID+"\n", out)

	out, err = run(t, t.TempDir(), "walkthrough", "--store", "esa-cci", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "rejected: "), out)
	assert.Contains(t, out, "variable:  ALT")
}

func TestMetricsPushedOnFailure(t *testing.T) {
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer catalog.Close()

	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/metrics/job/ccicube") {
			pushes.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	t.Setenv("CCICUBE_PUSHGATEWAY_URL", gateway.URL)
	t.Setenv("CCICUBE_MAX_RETRIES", "1")
	t.Setenv("CCICUBE_RETRY_INTERVAL", "1ms")
	_, err := run(t, t.TempDir(), "list", "--store", "esa-cci", "--endpoint", catalog.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), pushes.Load())
}
