package render

import (
	"fmt"
	"slices"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// DefaultColorMap is used when Options.ColorMap is empty.
const DefaultColorMap = "extended-black-body"

var colorMaps = map[string]func() palette.ColorMap{
	"black-body":          moreland.BlackBody,
	"extended-black-body": moreland.ExtendedBlackBody,
	"kindlmann":           moreland.Kindlmann,
	"extended-kindlmann":  moreland.ExtendedKindlmann,
	"blue-red":            func() palette.ColorMap { return moreland.SmoothBlueRed() },
	"blue-tan":            func() palette.ColorMap { return moreland.SmoothBlueTan() },
	"green-purple":        func() palette.ColorMap { return moreland.SmoothGreenPurple() },
	"green-red":           func() palette.ColorMap { return moreland.SmoothGreenRed() },
	"purple-orange":       func() palette.ColorMap { return moreland.SmoothPurpleOrange() },
}

// ColorMaps returns the names accepted by Options.ColorMap.
func ColorMaps() []string {
	names := make([]string, 0, len(colorMaps))
	for name := range colorMaps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func colorMap(name string, lo, hi float64) (palette.ColorMap, error) {
	if name == "" {
		name = DefaultColorMap
	}
	newMap, ok := colorMaps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownColorMap, name, ColorMaps())
	}
	cm := newMap()
	cm.SetMax(hi)
	cm.SetMin(lo)
	return cm, nil
}
