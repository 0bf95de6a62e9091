package catalog

import "errors"

var (
	// ErrNoServerConfig is returned when no automation server is configured.
	ErrNoServerConfig = errors.New("catalog: no automation server configured")

	// ErrInvalidServerConfig is returned when the server URL is empty.
	ErrInvalidServerConfig = errors.New("catalog: server url is required")

	// ErrInvalidPattern is returned when a regex pattern does not compile.
	ErrInvalidPattern = errors.New("catalog: invalid regex pattern")

	// ErrUnknownVariable is returned when a configuration names variables
	// that are not in the catalog.
	ErrUnknownVariable = errors.New("catalog: unknown variable")

	// ErrInvalidVariable is returned when a catalog entry has no node id.
	ErrInvalidVariable = errors.New("catalog: variable node id is required")
)
