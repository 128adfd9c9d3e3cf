package config

import "errors"

var (
	// ErrInvalidConfig is returned when a loaded value fails validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig is returned when a config source cannot be read.
	ErrLoadConfig = errors.New("load config failed")
)
