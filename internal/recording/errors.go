package recording

import "errors"

var (
	// ErrRunNotFound is returned when a run id does not exist.
	ErrRunNotFound = errors.New("recording: run not found")

	// ErrRunExists is returned when creating a run with an existing id.
	ErrRunExists = errors.New("recording: run already exists")
)
