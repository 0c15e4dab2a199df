package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not return in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanicked indicates a health check panicked.
	ErrCheckPanicked = errors.New("health: check panicked")
)
