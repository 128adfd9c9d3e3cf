package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtm0/ccicube/internal/schema"
	"github.com/rtm0/ccicube/internal/store"
)

const permafrostID = "esacci.PERMAFROST.yr.L4.ALT.multi-sensor.multi-platform.MODISLST_CRYOGRID.03-0.r1"

type walkthrough struct {
	variable  string
	timeRange []string
	bbox      []float64
	output    string
}

func newWalkthroughCmd(a *app) *cobra.Command {
	var w walkthrough
	cmd := &cobra.Command{
		Use:   "walkthrough [ID]",
		Short: "Search, describe, open and plot a dataset step by step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataID := permafrostID
			if len(args) == 1 {
				dataID = args[0]
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			return w.run(cmd.Context(), a, cmd.OutOrStdout(), st, dataID)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&w.variable, "variable", "ALT", "variable to search for, open and plot")
	fs.StringSliceVar(&w.timeRange, "time-range", []string{"2003-01-01", "2019-12-31"}, "inclusive date range as START,END")
	fs.Float64SliceVar(&w.bbox, "bbox", []float64{-20, 40, 20, 80}, "spatial subset tried in the open step")
	fs.StringVarP(&w.output, "output", "o", "", "also render the first time step to this image file")
	return cmd
}

func (w *walkthrough) run(ctx context.Context, a *app, out io.Writer, st store.DataStore, dataID string) error {
	fmt.Fprintf(out, "== 1. Connected to data store %q\n", st.ID())

	fmt.Fprintf(out, "\n== 2. Datasets with variable %q\n", w.variable)
	refs, err := st.SearchData(ctx, store.Filter{Variable: w.variable})
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Fprintf(out, "%s\t%s\n", r.StoreID, r.DataID)
	}

	fmt.Fprintf(out, "\n== 3. Description of %s\n", dataID)
	d, err := st.DescribeData(ctx, dataID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "crs:         %s\n", d.CRS)
	fmt.Fprintf(out, "time range:  %s .. %s (%s)\n", d.TimeRange[0], d.TimeRange[1], d.TimePeriod)
	fmt.Fprintf(out, "variables:   %s\n", strings.Join(d.VarNames(), ", "))
	if s := d.OpenParamsSchema; s != nil {
		fmt.Fprintf(out, "open params: %s\n", strings.Join(s.PropertyNames(), ", "))
	}

	params := schema.Params{
		schema.VariableNames: []string{w.variable},
		schema.TimeRange:     w.timeRange,
	}
	if len(w.bbox) > 0 {
		params[schema.BBox] = w.bbox
	}
	fmt.Fprintf(out, "\n== 4. Opening %s with %v\n", w.variable, params)
	ds, err := st.OpenData(ctx, dataID, params)
	var ve *schema.ValidationError
	if errors.As(err, &ve) && undeclared(d.OpenParamsSchema, ve.Fields) {
		fmt.Fprintf(out, "rejected: %v\n", err)
		fmt.Fprintf(out, "The dataset's schema does not declare %s; retrying without it.\n", strings.Join(ve.Fields, ", "))
		for _, f := range ve.Fields {
			delete(params, f)
		}
		ds, err = st.OpenData(ctx, dataID, params)
	}
	if err != nil {
		return err
	}
	printSummary(out, dataID, ds)

	if w.output == "" {
		return nil
	}
	s, err := ds.Slice(w.variable, 0)
	if err != nil {
		return err
	}
	if err := a.writeMap(w.output, s, a.cfg.ColorMap); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n== 5. Map of %s written to %s\n", w.variable, w.output)
	return nil
}

// undeclared reports whether none of fields is a property of s.
func undeclared(s *schema.Schema, fields []string) bool {
	if s == nil || len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if s.Accepts(f) {
			return false
		}
	}
	return true
}
