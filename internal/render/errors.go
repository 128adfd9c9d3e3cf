package render

import "errors"

var (
	// ErrUnknownColorMap is returned for a colour map name not in ColorMaps.
	ErrUnknownColorMap = errors.New("unknown colour map")
	// ErrNoData is returned when every cell of a slice is missing.
	ErrNoData = errors.New("slice has no valid values")
	// ErrFormat is returned for an unsupported image format.
	ErrFormat = errors.New("unsupported image format")
)
