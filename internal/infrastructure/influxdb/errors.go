package influxdb

import "errors"

// Sentinel errors for the sample mirror client.
//
// Writes are asynchronous, so write failures never surface here; they
// reach the callback registered with SetOnError.
var (
	// ErrNotConnected is returned by HealthCheck once the client is closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed ping or an unready server at Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
