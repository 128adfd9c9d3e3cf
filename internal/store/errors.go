package store

import "errors"

var (
	// ErrNotFound is returned for data IDs unknown to a store.
	ErrNotFound = errors.New("dataset not found")
	// ErrUnknownStore is returned when opening a store by an unknown name.
	ErrUnknownStore = errors.New("unknown data store")
)
