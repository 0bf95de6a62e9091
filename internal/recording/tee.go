package recording

import (
	"context"
	"fmt"
)

// Tee appends to a primary sink and then to any number of mirrors.
// Only the primary's error is returned; mirror failures are logged.
type Tee struct {
	primary Sink
	mirrors []Sink
	logger  Logger
}

// NewTee creates a tee. With no mirrors it behaves exactly like primary.
func NewTee(logger Logger, primary Sink, mirrors ...Sink) *Tee {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tee{primary: primary, mirrors: mirrors, logger: logger}
}

// Append implements Sink.
func (t *Tee) Append(ctx context.Context, samples []Sample) error {
	if err := t.primary.Append(ctx, samples); err != nil {
		return fmt.Errorf("primary sink: %w", err)
	}
	for i, m := range t.mirrors {
		if err := m.Append(ctx, samples); err != nil {
			t.logger.Warn("sample mirror failed", "mirror", i, "samples", len(samples), "error", err)
		}
	}
	return nil
}
