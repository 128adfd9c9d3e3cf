package render_test

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/render"
)

func slice(z ...float64) *cube.Slice {
	return &cube.Slice{
		Name:     "ALT",
		LongName: "active layer thickness",
		Units:    "m",
		Time:     time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
		Y:        cube.Coord{Name: "y", Values: []float64{1000, 0, -1000}, Attrs: map[string]any{"units": "m"}},
		X:        cube.Coord{Name: "x", Values: []float64{-500, 500}},
		Z:        z,
	}
}

func TestMapPNG(t *testing.T) {
	var buf bytes.Buffer
	s := slice(math.NaN(), 1, 2, 3, 4, 5)
	err := render.Map(&buf, s, render.Options{ColorMap: "kindlmann", Width: 4 * vg.Inch, Height: 3 * vg.Inch})
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Width)
	assert.Equal(t, 288, cfg.Height)
}

func TestMapJPEGConstantField(t *testing.T) {
	var buf bytes.Buffer
	err := render.Map(&buf, slice(2, 2, 2, 2, 2, 2), render.Options{Format: "jpg"})
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestMapFixedRange(t *testing.T) {
	lo, hi := 0.0, 10.0
	var buf bytes.Buffer
	require.NoError(t, render.Map(&buf, slice(1, 2, 3, 4, 5, 6), render.Options{ColorMap: "blue-red", Min: &lo, Max: &hi}))
	assert.NotZero(t, buf.Len())
}

func TestMapErrors(t *testing.T) {
	nan := math.NaN()
	var buf bytes.Buffer
	err := render.Map(&buf, slice(nan, nan, nan, nan, nan, nan), render.Options{})
	assert.ErrorIs(t, err, render.ErrNoData)

	err = render.Map(&buf, slice(1, 2, 3, 4, 5, 6), render.Options{ColorMap: "rainbow"})
	assert.ErrorIs(t, err, render.ErrUnknownColorMap)

	err = render.Map(&buf, slice(1, 2, 3, 4, 5, 6), render.Options{Format: "gif"})
	assert.ErrorIs(t, err, render.ErrFormat)
}

func TestColorMaps(t *testing.T) {
	names := render.ColorMaps()
	assert.Contains(t, names, render.DefaultColorMap)
	assert.IsIncreasing(t, names)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, "jpg", render.FormatOf("map.JPEG"))
	assert.Equal(t, "png", render.FormatOf("map.png"))
	assert.Equal(t, "png", render.FormatOf("map"))
}
