package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

const (
	defaultInterval            = 50 * time.Millisecond
	defaultFallbackConcurrency = 8

	// finalizeTimeout bounds closing the run record and the server session.
	finalizeTimeout = 5 * time.Second
)

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

// Resolver maps a variable id to a short label.
type Resolver interface {
	Resolve(ctx context.Context, id string) string
}

// Options tunes polling.
type Options struct {
	// Interval is the time between cycle starts. Default 50ms.
	Interval time.Duration

	// FallbackConcurrency bounds per-variable reads after a failed batch
	// read. Default 8.
	FallbackConcurrency int
}

// Monitor starts change-detection sessions.
type Monitor struct {
	access variable.Access
	sink   recording.Sink
	runs   recording.RunLog
	names  Resolver
	opts   Options
	logger Logger
	now    func() time.Time
}

// New creates a Monitor. names may be nil, in which case samples are
// labelled with catalog.ShortName.
func New(access variable.Access, sink recording.Sink, runs recording.RunLog, names Resolver, opts Options, logger Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.FallbackConcurrency <= 0 {
		opts.FallbackConcurrency = defaultFallbackConcurrency
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Monitor{
		access: access,
		sink:   sink,
		runs:   runs,
		names:  names,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Target is what a session watches.
type Target struct {
	RunID     string
	DesignID  string
	Endpoint  string
	Variables []catalog.TrackedVariable
}

// Session is one running change-detection loop.
type Session struct {
	m      *Monitor
	target Target
	ids    []string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// abort cancels in-flight reads once a Stop wait runs out.
	abort context.CancelFunc

	statusMu sync.Mutex
	status   string

	finalOnce sync.Once
	samples   atomic.Int64

	// last is only touched by the polling goroutine.
	last map[string]*variable.Value
}

// Start opens the run record and begins polling in the background.
// The session outlives ctx's cancellation; it ends only through Stop.
// Reads run under a context of their own that Stop cancels when its wait
// runs out.
//
// Parameters:
//   - ctx: Bounds opening the run record; values are inherited by the loop
//   - t: Run identity, server endpoint and the variables to watch
//
// Returns:
//   - *Session: Handle used to stop the session
//   - error: ErrNoVariables, ErrInvalidRun or a run log failure
func (m *Monitor) Start(ctx context.Context, t Target) (*Session, error) {
	if t.RunID == "" {
		return nil, ErrInvalidRun
	}
	if len(t.Variables) == 0 {
		return nil, ErrNoVariables
	}

	err := m.runs.CreateRun(ctx, recording.Run{
		ID:            t.RunID,
		DesignID:      t.DesignID,
		StartedAt:     m.now().UTC(),
		Status:        recording.RunRunning,
		VariableCount: len(t.Variables),
	})
	if err != nil {
		return nil, fmt.Errorf("opening run record: %w", err)
	}

	pollCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	s := m.newSession(t)
	s.abort = abort
	go s.run(pollCtx)
	return s, nil
}

func (m *Monitor) newSession(t Target) *Session {
	ids := make([]string, len(t.Variables))
	for i, v := range t.Variables {
		ids[i] = v.ID
	}
	return &Session{
		m:      m,
		target: t,
		ids:    ids,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		abort:  func() {},
		status: recording.RunFinished,
		last:   make(map[string]*variable.Value, len(ids)),
	}
}

// RunID returns the run this session records.
func (s *Session) RunID() string { return s.target.RunID }

// Samples returns how many samples the sink has accepted so far.
func (s *Session) Samples() int64 { return s.samples.Load() }

// Done is closed once the session has finalized.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop asks the session to end with the given run status and waits until
// the current cycle has completed and the run record is closed.
// Concurrent and repeated calls are safe; the first status wins.
//
// If ctx ends first, the in-flight reads are cancelled and Stop still
// waits for the session to finalize. Done is always closed when Stop
// returns.
//
// Parameters:
//   - ctx: Grace period for the current cycle
//   - status: recording.RunFinished or recording.RunCancelled
//
// Returns:
//   - error: ctx.Err() if the cycle had to be aborted
func (s *Session) Stop(ctx context.Context, status string) error {
	s.stopOnce.Do(func() {
		s.statusMu.Lock()
		s.status = status
		s.statusMu.Unlock()
		close(s.stop)
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
	}

	s.abort()
	<-s.done
	return ctx.Err()
}

func (s *Session) stopStatus() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.abort()

	activeSessions.Inc()
	defer activeSessions.Dec()

	log := s.m.logger
	session, err := s.m.access.Connect(ctx, s.target.Endpoint)
	if err != nil {
		log.Error("monitor connect failed",
			"run_id", s.target.RunID,
			"endpoint", s.target.Endpoint,
			"error", err,
		)
		s.finalize(ctx, recording.RunFailed)
		return
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			log.Warn("monitor session close failed", "run_id", s.target.RunID, "error", err)
		}
	}()

	log.Info("monitor started",
		"run_id", s.target.RunID,
		"design_id", s.target.DesignID,
		"variables", len(s.ids),
		"interval", s.m.opts.Interval,
	)

	ticker := time.NewTicker(s.m.opts.Interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx, session)

		select {
		case <-s.stop:
			s.finalize(ctx, s.stopStatus())
			return
		case <-ticker.C:
		}
	}
}

// cycle reads every variable once and appends the changes.
func (s *Session) cycle(ctx context.Context, session variable.Session) {
	began := time.Now()
	values := s.read(ctx, session)
	if ctx.Err() != nil {
		// Aborted reads are not observations.
		return
	}
	ts := s.m.now()

	var batch []recording.Sample
	for i, tv := range s.target.Variables {
		dv := values[i]
		prev, seen := s.last[tv.ID]
		if seen && sameValue(prev, dv.Value) {
			continue
		}
		s.last[tv.ID] = dv.Value
		batch = append(batch, recording.NewSample(
			s.target.RunID, tv.ID, s.label(ctx, tv.ID), tv.DeclaredType, dv, ts,
		))
	}

	if len(batch) > 0 {
		if err := s.m.sink.Append(ctx, batch); err != nil {
			appendFailures.Inc()
			s.m.logger.Warn("sample append failed",
				"run_id", s.target.RunID,
				"samples", len(batch),
				"error", err,
			)
		} else {
			samplesRecorded.Add(float64(len(batch)))
			s.samples.Add(int64(len(batch)))
		}
	}

	cycleDuration.Observe(time.Since(began).Seconds())
}

// read prefers one batch round trip and falls back to concurrent single
// reads. A failed single read becomes a bad-quality null.
func (s *Session) read(ctx context.Context, session variable.Session) []variable.DataValue {
	values, err := session.BatchRead(ctx, s.ids)
	if err == nil && len(values) == len(s.ids) {
		return values
	}
	readFailures.WithLabelValues("batch").Inc()
	s.m.logger.Debug("batch read failed, reading individually",
		"run_id", s.target.RunID,
		"error", err,
	)

	values = make([]variable.DataValue, len(s.ids))
	var g errgroup.Group
	g.SetLimit(s.m.opts.FallbackConcurrency)
	for i, id := range s.ids {
		i, id := i, id
		g.Go(func() error {
			dv, err := session.Read(ctx, id)
			if err != nil {
				readFailures.WithLabelValues("single").Inc()
				dv = variable.DataValue{Quality: variable.QualityBad}
			}
			values[i] = dv
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // read errors are folded into values

	return values
}

func (s *Session) label(ctx context.Context, id string) string {
	if s.m.names == nil {
		return catalog.ShortName(id)
	}
	return s.m.names.Resolve(ctx, id)
}

// finalize closes the run record. It runs at most once per session.
func (s *Session) finalize(ctx context.Context, status string) {
	s.finalOnce.Do(func() {
		finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()

		if err := s.m.runs.FinishRun(finCtx, s.target.RunID, status, s.m.now().UTC()); err != nil {
			s.m.logger.Error("closing run record failed",
				"run_id", s.target.RunID,
				"status", status,
				"error", err,
			)
			return
		}
		s.m.logger.Info("monitor stopped",
			"run_id", s.target.RunID,
			"status", status,
			"samples", s.samples.Load(),
		)
	})
}

func sameValue(a, b *variable.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
