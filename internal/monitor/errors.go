package monitor

import "errors"

var (
	// ErrNoVariables is returned when starting a session with nothing to track.
	ErrNoVariables = errors.New("monitor: no tracked variables")

	// ErrInvalidRun is returned when a session is started without a run id.
	ErrInvalidRun = errors.New("monitor: run id is required")
)
