package variable

import (
	"context"
	"strings"
)

// Access opens sessions against an automation server endpoint.
type Access interface {
	// Connect opens a session to the server at endpoint.
	Connect(ctx context.Context, endpoint string) (Session, error)
}

// Session is an open connection to the automation server.
// Implementations must be safe for concurrent use.
type Session interface {
	// Read returns the current value of one variable.
	Read(ctx context.Context, id string) (DataValue, error)

	// Write sets one variable.
	Write(ctx context.Context, id string, v Value) error

	// BatchRead reads several variables in one round trip.
	// The result is index-aligned with ids.
	BatchRead(ctx context.Context, ids []string) ([]DataValue, error)

	// Close releases the session. Safe to call more than once.
	Close(ctx context.Context) error
}

// FullID expands a short variable reference with the server's id prefix.
//
// References that are already absolute ("ns=...") and servers without a
// prefix are returned unchanged.
func FullID(prefix, short string) string {
	if prefix == "" || strings.HasPrefix(short, "ns=") {
		return short
	}
	return prefix + "." + short
}
