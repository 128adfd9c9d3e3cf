// Package render draws map images of dataset slices.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/rtm0/ccicube/internal/cube"
)

const (
	legendWidth = 1.1 * vg.Inch
	paletteSize = 255
)

// Options controls how a slice is drawn.
type Options struct {
	ColorMap string
	// Width and Height of the whole image including the legend.
	Width, Height vg.Length
	// Format is "png" or "jpg".
	Format string
	Title  string
	// Min and Max fix the colour range. Unset bounds follow the data.
	Min, Max *float64
}

// FormatOf returns the image format implied by a file name, defaulting to png.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpg"
	}
	return "png"
}

// Map draws s as a heat map with a colour bar and writes the encoded image
// to w. Missing cells are left transparent.
func Map(w io.Writer, s *cube.Slice, o Options) error {
	if o.Width <= legendWidth {
		o.Width = 8 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 5 * vg.Inch
	}
	var jpeg bool
	switch o.Format {
	case "", "png":
	case "jpg", "jpeg":
		jpeg = true
	default:
		return fmt.Errorf("%w: %q", ErrFormat, o.Format)
	}
	lo, hi := s.Range()
	if o.Min != nil {
		lo = *o.Min
	}
	if o.Max != nil {
		hi = *o.Max
	}
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return fmt.Errorf("%s: %w", s.Name, ErrNoData)
	}
	if lo > hi {
		return fmt.Errorf("%s: colour range [%g, %g] is inverted", s.Name, lo, hi)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	cm, err := colorMap(o.ColorMap, lo, hi)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = o.Title
	if p.Title.Text == "" {
		p.Title.Text = title(s)
	}
	p.X.Label.Text = axisLabel(s.X)
	p.Y.Label.Text = axisLabel(s.Y)
	hm := plotter.NewHeatMap(newGrid(s), cm.Palette(paletteSize))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	p.Add(hm)

	legend := plot.New()
	legend.HideX()
	legend.Y.Label.Text = s.Units
	legend.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})

	img := vgimg.New(o.Width, o.Height)
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, -legendWidth, 0, 0))
	legend.Draw(draw.Crop(dc, o.Width-legendWidth, 0, 0, -(p.Title.TextStyle.Height(p.Title.Text) + p.Title.Padding)))

	var wt io.WriterTo = vgimg.PngCanvas{Canvas: img}
	if jpeg {
		wt = vgimg.JpegCanvas{Canvas: img}
	}
	_, err = wt.WriteTo(w)
	return err
}

func title(s *cube.Slice) string {
	name := s.LongName
	if name == "" {
		name = s.Name
	}
	return fmt.Sprintf("%s, %s", name, s.Time.Format("2006-01-02"))
}

func axisLabel(c cube.Coord) string {
	if u := c.Units(); u != "" {
		return fmt.Sprintf("%s (%s)", c.Name, u)
	}
	return c.Name
}

// grid adapts a slice to plotter.GridXYZ, presenting both axes ascending.
type grid struct {
	s            *cube.Slice
	flipX, flipY bool
}

func newGrid(s *cube.Slice) grid {
	return grid{
		s:     s,
		flipX: descending(s.X.Values),
		flipY: descending(s.Y.Values),
	}
}

func descending(v []float64) bool {
	return len(v) > 1 && v[0] > v[len(v)-1]
}

func (g grid) Dims() (c, r int) { return g.s.X.Len(), g.s.Y.Len() }

func (g grid) col(c int) int {
	if g.flipX {
		return g.s.X.Len() - 1 - c
	}
	return c
}

func (g grid) row(r int) int {
	if g.flipY {
		return g.s.Y.Len() - 1 - r
	}
	return r
}

func (g grid) Z(c, r int) float64 { return g.s.At(g.col(c), g.row(r)) }
func (g grid) X(c int) float64    { return g.s.X.Values[g.col(c)] }
func (g grid) Y(r int) float64    { return g.s.Y.Values[g.row(r)] }
