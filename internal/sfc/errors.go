package sfc

import "errors"

var (
	// ErrNoActiveRun is returned when cancelling a design that is not running.
	ErrNoActiveRun = errors.New("sfc: no active run")

	// ErrManagerClosed is returned by StartRun after Close.
	ErrManagerClosed = errors.New("sfc: manager closed")

	// ErrNoServer is returned by StartRun when no automation server is
	// configured.
	ErrNoServer = errors.New("sfc: no automation server configured")
)
