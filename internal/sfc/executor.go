package sfc

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/actuator"
	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

const (
	defaultHeartbeat      = 50 * time.Millisecond
	defaultStepsPerSecond = 10
)

// Outcome is how a node execution ended.
type Outcome int

const (
	// OutcomeFinished means the node's work completed.
	OutcomeFinished Outcome = iota

	// OutcomeError means the work failed. The node still counts as
	// finished for its successors.
	OutcomeError

	// OutcomeCancelled means the run was torn down while the node ran.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Done reports whether the outcome satisfies successors.
func (o Outcome) Done() bool {
	return o == OutcomeFinished || o == OutcomeError
}

// Ramper performs value ramps.
type Ramper interface {
	Ramp(ctx context.Context, r actuator.Ramp) error
}

// Emitter receives status events.
type Emitter interface {
	Broadcast(e broadcast.Event)
}

// ExecutorOptions tunes node execution.
type ExecutorOptions struct {
	// Heartbeat is the elapsed-time update interval while a node runs.
	// Default 50ms.
	Heartbeat time.Duration

	// StepsPerSecond sets the ramp resolution. Default 10.
	StepsPerSecond int
}

// Executor runs single nodes.
type Executor struct {
	ramper Ramper
	events Emitter
	opts   ExecutorOptions
	logger Logger
}

// NewExecutor creates an executor.
func NewExecutor(ramper Ramper, events Emitter, opts ExecutorOptions, logger Logger) *Executor {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.StepsPerSecond <= 0 {
		opts.StepsPerSecond = defaultStepsPerSecond
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{ramper: ramper, events: events, opts: opts, logger: logger}
}

// runInfo is what a node needs to know about its run.
type runInfo struct {
	RunID    string
	DesignID string
	Endpoint string
	Prefix   string
}

// Execute runs one node to completion and reports how it ended.
//
// The node is announced as running and its elapsed time is re-emitted on
// every heartbeat until the work returns. A failed node is reported with
// its error and then sleeps out the rest of its nominal duration. When ctx
// is cancelled the node reports OutcomeCancelled and never finished.
func (e *Executor) Execute(ctx context.Context, run runInfo, n Node) Outcome {
	began := time.Now()
	emit := func(status string, elapsed *float64, msg string) {
		e.events.Broadcast(broadcast.Event{
			RunID:       run.RunID,
			DesignID:    run.DesignID,
			NodeID:      n.ID,
			Status:      status,
			ElapsedTime: elapsed,
			Error:       msg,
		})
	}

	emit(broadcast.StatusRunning, nil, "")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		ticker := time.NewTicker(e.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				emit(broadcast.StatusRunning, broadcast.Elapsed(time.Since(began)), "")
			}
		}
	}()

	err := e.work(ctx, run, n)

	stopHeartbeat()
	<-hbDone
	elapsed := time.Since(began)

	outcome := OutcomeFinished
	switch {
	case ctx.Err() != nil:
		outcome = OutcomeCancelled
		emit(broadcast.StatusCancelled, broadcast.Elapsed(elapsed), "")
	case err != nil:
		outcome = OutcomeError
		e.logger.Warn("node failed",
			"run_id", run.RunID,
			"node_id", n.ID,
			"kind", n.Kind.String(),
			"error", err,
		)
		emit(broadcast.StatusError, broadcast.Elapsed(elapsed), err.Error())
		if remaining := n.Duration - elapsed; remaining > 0 {
			if sleep(ctx, remaining) != nil {
				outcome = OutcomeCancelled
				emit(broadcast.StatusCancelled, broadcast.Elapsed(time.Since(began)), "")
			}
		}
	default:
		emit(broadcast.StatusFinished, broadcast.Elapsed(elapsed), "")
	}

	nodeExecutions.WithLabelValues(n.Kind.String(), outcome.String()).Inc()
	nodeDuration.WithLabelValues(n.Kind.String()).Observe(elapsed.Seconds())
	return outcome
}

func (e *Executor) work(ctx context.Context, run runInfo, n Node) error {
	switch n.Kind {
	case KindSetValue:
		if n.DurationErr != nil {
			return n.DurationErr
		}
		if n.Variable == "" {
			return sleep(ctx, n.Duration)
		}
		err := e.ramper.Ramp(ctx, actuator.Ramp{
			Endpoint: run.Endpoint,
			Variable: variable.FullID(run.Prefix, n.Variable),
			Start:    n.Start,
			End:      n.End,
			Steps:    actuator.StepsFor(n.Duration, e.opts.StepsPerSecond),
			Duration: n.Duration,
		})
		if err != nil {
			return fmt.Errorf("ramping %s: %w", n.Variable, err)
		}
		return nil
	case KindWait:
		if n.DurationErr != nil {
			return n.DurationErr
		}
		return sleep(ctx, n.Duration)
	case KindStart, KindEnd, KindCondition:
		return nil
	}
	return nil
}

// sleep waits for d or until ctx is done.
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
