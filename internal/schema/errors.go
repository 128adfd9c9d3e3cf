package schema

import "errors"

var (
	// ErrInvalidParams matches every *ValidationError.
	ErrInvalidParams = errors.New("invalid open parameters")
)
