package actuator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

// closeTimeout bounds closing the session after a cancelled ramp.
const closeTimeout = 2 * time.Second

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Ramp describes one interpolated write sequence.
type Ramp struct {
	// Endpoint is the automation server address.
	Endpoint string

	// Variable is the fully qualified variable id.
	Variable string

	// Start and End are operator-entered values. Empty means 0.
	Start string
	End   string

	// Steps is the number of writes, at least 1.
	Steps int

	// Duration is the total ramp time.
	Duration time.Duration
}

// StepsFor returns the write count for a ramp of d at perSecond writes per second.
// The result is never below 1.
func StepsFor(d time.Duration, perSecond int) int {
	steps := int(d.Seconds() * float64(perSecond))
	if steps < 1 {
		return 1
	}
	return steps
}

// Actuator performs ramps. Each Ramp call opens and closes its own session.
type Actuator struct {
	access variable.Access
	logger Logger
}

// New creates an actuator over the given variable access.
func New(access variable.Access, logger Logger) *Actuator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Actuator{access: access, logger: logger}
}

// Ramp writes r.Steps interpolated values to r.Variable.
//
// The write type is taken from the variable's current value (Float when it
// cannot be read). Write i is issued at i*Duration/Steps after the ramp
// starts and the call returns at about Duration.
//
// Returns:
//   - nil on success, and also when the ramp failed but the start value
//     fallback was written
//   - ctx.Err() when cancelled
//   - an error when the session cannot be opened or the fallback write fails
func (a *Actuator) Ramp(ctx context.Context, r Ramp) error {
	if r.Variable == "" {
		return ErrNoVariable
	}
	if r.Steps < 1 {
		r.Steps = 1
	}

	sess, err := a.access.Connect(ctx, r.Endpoint)
	if err != nil {
		return fmt.Errorf("opening session for %s: %w", r.Variable, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			a.logger.Warn("closing ramp session", "variable", r.Variable, "error", err)
		}
	}()

	kind := variable.KindFloat
	if dv, err := sess.Read(ctx, r.Variable); err == nil {
		kind = variable.KindOf(dv)
	} else if ctx.Err() != nil {
		return ctx.Err()
	} else {
		a.logger.Debug("type inference read failed, assuming Float", "variable", r.Variable, "error", err)
	}

	err = a.run(ctx, sess, r, kind)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.logger.Warn("ramp failed, writing start value",
		"variable", r.Variable,
		"type", kind,
		"error", err,
	)
	return a.fallback(ctx, sess, r, kind)
}

func (a *Actuator) run(ctx context.Context, sess variable.Session, r Ramp, kind variable.Kind) error {
	if kind == variable.KindString {
		return variable.ErrNotNumeric
	}

	start, err := numeric(kind, r.Start)
	if err != nil {
		return fmt.Errorf("start value: %w", err)
	}
	end, err := numeric(kind, r.End)
	if err != nil {
		return fmt.Errorf("end value: %w", err)
	}

	began := time.Now()
	stepDuration := r.Duration / time.Duration(r.Steps)

	for i := 0; i < r.Steps; i++ {
		frac := 0.0
		if r.Steps > 1 {
			frac = float64(i) / float64(r.Steps-1)
		}

		v, err := variable.FromFloat(kind, start+(end-start)*frac)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := sess.Write(ctx, r.Variable, v); err != nil {
			rampWrites.WithLabelValues("failed").Inc()
			return fmt.Errorf("step %d: %w", i, err)
		}
		rampWrites.WithLabelValues("ok").Inc()

		// Target is measured from the ramp start so jitter does not accumulate.
		target := time.Duration(i+1) * stepDuration
		if err := sleep(ctx, target-time.Since(began)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actuator) fallback(ctx context.Context, sess variable.Session, r Ramp, kind variable.Kind) error {
	v, err := typed(kind, r.Start)
	if err != nil {
		v = variable.StringValue(r.Start)
	}
	if err := sess.Write(ctx, r.Variable, v); err != nil {
		rampWrites.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %s: %w", ErrFallbackFailed, r.Variable, err)
	}
	rampWrites.WithLabelValues("fallback").Inc()
	return nil
}

// numeric parses operator text in the variable's kind and returns its numeric view.
func numeric(kind variable.Kind, text string) (float64, error) {
	v, err := typed(kind, text)
	if err != nil {
		return 0, err
	}
	f, ok := v.Float64()
	if !ok {
		return 0, variable.ErrNotNumeric
	}
	return f, nil
}

// typed parses text as kind; blank text is the kind's zero.
func typed(kind variable.Kind, text string) (variable.Value, error) {
	if strings.TrimSpace(text) == "" && kind != variable.KindString {
		return variable.FromFloat(kind, 0)
	}
	return variable.Parse(kind, text)
}

// sleep waits for d or until ctx ends. Non-positive d returns immediately.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
