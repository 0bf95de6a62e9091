package actuator

import "errors"

var (
	// ErrNoVariable is returned when a ramp has no target variable.
	ErrNoVariable = errors.New("actuator: no variable")

	// ErrFallbackFailed is returned when the start value could not be written
	// after the ramp itself failed.
	ErrFallbackFailed = errors.New("actuator: fallback write failed")
)
