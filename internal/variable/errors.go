package variable

import "errors"

// Domain errors for variable access.
var (
	// ErrUnknownVariable is returned when the server has no variable with the given id.
	ErrUnknownVariable = errors.New("variable: unknown variable")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("variable: session closed")

	// ErrTimeout is returned when the gateway does not answer in time.
	ErrTimeout = errors.New("variable: gateway request timed out")

	// ErrGateway wraps an error reported by the protocol gateway.
	ErrGateway = errors.New("variable: gateway error")

	// ErrGatewayStopped is returned when requests are issued before Start or after Stop.
	ErrGatewayStopped = errors.New("variable: gateway not running")

	// ErrUnknownKind is returned for a value type outside Int32/Float/Boolean/String.
	ErrUnknownKind = errors.New("variable: unknown value type")

	// ErrConversion is returned when text cannot be converted to the requested kind.
	ErrConversion = errors.New("variable: value conversion failed")

	// ErrTypeMismatch is returned when a write does not match the variable's type.
	ErrTypeMismatch = errors.New("variable: type mismatch")

	// ErrNotNumeric is returned when a numeric operation is applied to a String value.
	ErrNotNumeric = errors.New("variable: value is not numeric")
)
