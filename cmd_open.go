package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/render"
	"github.com/rtm0/ccicube/internal/schema"
)

// openFlags collect open parameters from the command line.
type openFlags struct {
	vars      []string
	timeRange []string
	bbox      []float64
	normalize bool
	extra     []string
}

func (f *openFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.vars, "var", nil, "variable names to open (default all)")
	fs.StringSliceVar(&f.timeRange, "time-range", nil, "inclusive date range as START,END (YYYY-MM-DD)")
	fs.Float64SliceVar(&f.bbox, "bbox", nil, "spatial subset as WEST,SOUTH,EAST,NORTH, geographic datasets only")
	fs.BoolVar(&f.normalize, "normalize", false, "rename to lat/lon, wrap longitudes and sort both axes ascending")
	fs.StringArrayVar(&f.extra, "param", nil, "additional open parameter as KEY=VALUE, VALUE parsed as JSON when possible")
}

// params builds the open parameters. Their validity is left to the schema
// of the dataset.
func (f *openFlags) params() (schema.Params, error) {
	p := schema.Params{}
	if len(f.vars) > 0 {
		p[schema.VariableNames] = f.vars
	}
	if len(f.timeRange) > 0 {
		if len(f.timeRange) != 2 {
			return nil, fmt.Errorf("--time-range needs START,END, got %q", strings.Join(f.timeRange, ","))
		}
		p[schema.TimeRange] = f.timeRange
	}
	if len(f.bbox) > 0 {
		p[schema.BBox] = f.bbox
	}
	if f.normalize {
		p[schema.NormalizeData] = true
	}
	for _, kv := range f.extra {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--param %q: want KEY=VALUE", kv)
		}
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		p[k] = val
	}
	return p, nil
}

func newOpenCmd(a *app) *cobra.Command {
	var (
		flags  openFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "open ID",
		Short: "Open a subset of a dataset and optionally save it as NetCDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			ds, err := a.openData(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), args[0], ds)
			if output == "" {
				return nil
			}
			if err := cube.Write(output, ds); err != nil {
				return err
			}
			a.logger.Info("Saved dataset", "dataID", args[0], "path", output)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the dataset to this NetCDF file")
	return cmd
}

func (a *app) openData(ctx context.Context, dataID string, params schema.Params) (*cube.Dataset, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return st.OpenData(ctx, dataID, params)
}

func printSummary(w io.Writer, dataID string, ds *cube.Dataset) {
	nt, ny, nx := ds.Shape()
	fmt.Fprintf(w, "dataset:   %s\n", dataID)
	fmt.Fprintf(w, "dims:      %s=%d %s=%d %s=%d\n", ds.TimeName, nt, ds.Y.Name, ny, ds.X.Name, nx)
	if nt > 0 {
		t0, t1 := ds.TimeRange()
		fmt.Fprintf(w, "time:      %s .. %s\n", t0.Format("2006-01-02"), t1.Format("2006-01-02"))
	}
	b := ds.Bounds()
	fmt.Fprintf(w, "bounds:    x %g .. %g, y %g .. %g\n", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
	for _, v := range ds.Vars() {
		units, _ := v.Attrs["units"].(string)
		fmt.Fprintf(w, "variable:  %s (%s) [%s]\n", v.Name, v.DType, units)
	}
}

const plotLong = `Render one time step of a variable as a map image. The data come from the
store when ID is given, or from the NetCDF file named by --input.`

func newPlotCmd(a *app) *cobra.Command {
	var (
		flags     openFlags
		input     string
		output    string
		timeIndex int
		colorMap  string
	)
	cmd := &cobra.Command{
		Use:   "plot [ID]",
		Short: "Render one time step of a variable as a map image",
		Long:  plotLong,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (input != "") {
				return errors.New("give either a dataset ID or --input")
			}
			var name string
			if len(flags.vars) > 0 {
				name = flags.vars[0]
				flags.vars = flags.vars[:1]
			}
			ds, err := a.plotData(cmd.Context(), args, input, &flags)
			if err != nil {
				return err
			}
			if name == "" {
				names := ds.VarNames()
				if len(names) == 0 {
					return fmt.Errorf("%w: dataset has no variables", cube.ErrEmptySelection)
				}
				name = names[0]
			}
			s, err := ds.Slice(name, timeIndex)
			if err != nil {
				return err
			}
			if output == "" {
				output = name + ".png"
			}
			if colorMap == "" {
				colorMap = a.cfg.ColorMap
			}
			return a.writeMap(output, s, colorMap)
		},
	}
	flags.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&input, "input", "", "read the dataset from this NetCDF file instead of the store")
	fs.IntVar(&timeIndex, "time-index", 0, "time step to draw")
	fs.StringVar(&colorMap, "colormap", "", fmt.Sprintf("colour map, one of %v", render.ColorMaps()))
	fs.StringVarP(&output, "output", "o", "", "image file, .png or .jpg (default VAR.png)")
	return cmd
}

func (a *app) plotData(ctx context.Context, args []string, input string, flags *openFlags) (*cube.Dataset, error) {
	params, err := flags.params()
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return a.openData(ctx, args[0], params)
	}
	op, err := schema.Decode(params)
	if err != nil {
		return nil, err
	}
	return cube.Read(ctx, input, cube.ReadOptions{
		Vars:      op.VariableNames,
		TimeMin:   op.Start,
		TimeMax:   op.End,
		BBox:      op.BBox,
		Normalize: op.Normalize,
	})
}

func (a *app) writeMap(path string, s *cube.Slice, colorMap string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	err = render.Map(f, s, render.Options{
		ColorMap: colorMap,
		Width:    vg.Length(a.cfg.PlotWidth) * vg.Inch,
		Height:   vg.Length(a.cfg.PlotHeight) * vg.Inch,
		Format:   render.FormatOf(path),
	})
	if err != nil {
		return err
	}
	a.logger.Info("Saved map", "variable", s.Name, "time", s.Time, "path", path)
	return nil
}
