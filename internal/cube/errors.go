package cube

import "errors"

var (
	// ErrNoGrid is returned when a file has no (time, y, x) variable.
	ErrNoGrid = errors.New("no time/y/x grid found")
	// ErrEmptySelection is returned when a time range or bbox selects nothing.
	ErrEmptySelection = errors.New("selection is empty")
	// ErrUnknownVariable is returned for variable names absent from a dataset.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnsupportedType is returned for variables that are not numeric.
	ErrUnsupportedType = errors.New("unsupported value type")
	// ErrMismatch is returned when merged datasets have different coordinates.
	ErrMismatch = errors.New("coordinates do not match")
)
