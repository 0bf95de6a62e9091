package sfc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/monitor"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
)

// defaultMonitorStop is the grace period a monitor gets to finish its
// current cycle at run end before its reads are aborted.
const defaultMonitorStop = 10 * time.Second

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

// ChartLoader loads a design's chart.
type ChartLoader interface {
	Load(ctx context.Context, designID string) (design.Chart, error)
}

// ServerSource returns the automation server configuration.
type ServerSource interface {
	GetServerConfig(ctx context.Context) (catalog.ServerConfig, error)
}

// TrackingSource returns the variables to record during runs.
type TrackingSource interface {
	TrackedVariables(ctx context.Context) ([]catalog.TrackedVariable, error)
}

// MonitorStarter starts change-detection sessions.
type MonitorStarter interface {
	Start(ctx context.Context, t monitor.Target) (*monitor.Session, error)
}

// Broadcaster is the status fan-out used by the manager.
type Broadcaster interface {
	Emitter
	Begin(runID, designID string, nodeIDs []string)
	Subscribe(key broadcast.Key, s broadcast.Subscriber)
	Unsubscribe(key broadcast.Key, s broadcast.Subscriber)
	RunSnapshot(runID string) (broadcast.Snapshot, bool)
	DesignSnapshot(designID string) (broadcast.Snapshot, bool)
}

// Deps are the manager's collaborators. Tracking and Monitor may be nil,
// in which case runs are not recorded.
type Deps struct {
	Designs  ChartLoader
	Servers  ServerSource
	Tracking TrackingSource
	Monitor  MonitorStarter
	Ramper   Ramper
	Events   Broadcaster
}

// Options groups executor and scheduler tuning.
type Options struct {
	Executor  ExecutorOptions
	Scheduler SchedulerOptions

	// MonitorStop is the grace period for a run's monitor to stop.
	// Default 10s.
	MonitorStop time.Duration
}

// runContext is the bookkeeping of one live run. The manager installs and
// clears it. monitor is read under the manager lock; the session itself is
// owned by the run goroutine.
type runContext struct {
	runID    string
	designID string
	started  time.Time
	graph    *Graph
	state    *runState
	cancel   context.CancelFunc
	monitor  *monitor.Session
	done     chan struct{}
}

// RunInfo describes a live run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	DesignID  string    `json:"design_id"`
	StartedAt time.Time `json:"started_at"`
	Recording bool      `json:"recording"`
	Progress  Progress  `json:"progress"`
}

// Manager starts, tracks and cancels chart runs, one per design.
type Manager struct {
	deps   Deps
	exec   *Executor
	opts   Options
	logger Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*runContext
	closed bool
}

// NewManager creates a manager. Runs are bound to the manager's lifetime,
// not to the context of the request that started them.
func NewManager(deps Deps, opts Options, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Scheduler.IdleWait <= 0 {
		opts.Scheduler.IdleWait = defaultIdleWait
	}
	if opts.Scheduler.Settle <= 0 {
		opts.Scheduler.Settle = defaultSettle
	}
	if opts.MonitorStop <= 0 {
		opts.MonitorStop = defaultMonitorStop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:       deps,
		exec:       NewExecutor(deps.Ramper, deps.Events, opts.Executor, logger),
		opts:       opts,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[string]*runContext),
	}
}

// StartRun starts executing a design and returns the new run id.
//
// A live run of the same design is cancelled first and StartRun waits for
// its teardown. Configuration problems are returned before any run exists:
// design.ErrDesignNotFound, design.ErrInvalidChart or ErrNoServer.
//
// Parameters:
//   - ctx: Bounds loading configuration and waiting for a previous run
//   - designID: The design to execute
//
// Returns:
//   - string: The run id
//   - error: Configuration error, ErrManagerClosed or ctx.Err()
func (m *Manager) StartRun(ctx context.Context, designID string) (string, error) {
	chart, err := m.deps.Designs.Load(ctx, designID)
	if err != nil {
		return "", fmt.Errorf("loading design %s: %w", designID, err)
	}
	server, err := m.deps.Servers.GetServerConfig(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrNoServerConfig) {
			return "", fmt.Errorf("%w: %w", ErrNoServer, err)
		}
		return "", fmt.Errorf("loading server config: %w", err)
	}

	graph := NewGraph(chart)
	runCtx, cancel := context.WithCancel(m.baseCtx)
	rc := &runContext{
		runID:    uuid.New().String(),
		designID: designID,
		started:  time.Now().UTC(),
		graph:    graph,
		state:    newRunState(graph),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := m.install(ctx, rc); err != nil {
		cancel()
		return "", err
	}

	// The previous run's monitor has stopped by now.
	sess := m.startMonitor(ctx, rc, server)
	m.mu.Lock()
	rc.monitor = sess
	m.mu.Unlock()

	m.deps.Events.Begin(rc.runID, designID, graph.Executable())
	runsStarted.Inc()
	activeRuns.Inc()

	m.logger.Info("run started",
		"run_id", rc.runID,
		"design_id", designID,
		"nodes", graph.Len(),
		"executable", len(graph.Executable()),
		"recording", sess != nil,
	)

	sched := &scheduler{
		exec:  m.exec,
		opts:  m.opts.Scheduler,
		graph: graph,
		state: rc.state,
		run: runInfo{
			RunID:    rc.runID,
			DesignID: designID,
			Endpoint: server.URL,
			Prefix:   server.Prefix,
		},
	}
	go m.drive(runCtx, rc, sched, sess)

	return rc.runID, nil
}

// install makes rc the design's live run, cancelling and awaiting any
// previous one. The slot is re-checked after each wait because another
// StartRun may have claimed it meanwhile.
func (m *Manager) install(ctx context.Context, rc *runContext) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrManagerClosed
		}
		prev := m.active[rc.designID]
		if prev == nil {
			m.active[rc.designID] = rc
			m.wg.Add(1)
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		m.logger.Info("superseding active run", "design_id", rc.designID, "run_id", prev.runID)
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) startMonitor(ctx context.Context, rc *runContext, server catalog.ServerConfig) *monitor.Session {
	if m.deps.Tracking == nil || m.deps.Monitor == nil {
		return nil
	}
	tracked, err := m.deps.Tracking.TrackedVariables(ctx)
	if err != nil {
		m.logger.Warn("loading tracked variables failed, run not recorded", "run_id", rc.runID, "error", err)
		return nil
	}
	if len(tracked) == 0 {
		return nil
	}
	sess, err := m.deps.Monitor.Start(ctx, monitor.Target{
		RunID:     rc.runID,
		DesignID:  rc.designID,
		Endpoint:  server.URL,
		Variables: tracked,
	})
	if err != nil {
		m.logger.Warn("monitor start failed, run not recorded", "run_id", rc.runID, "error", err)
		return nil
	}
	return sess
}

// drive runs the scheduler and tears the run down. It owns sess, the
// run's monitor session, which may be nil. rc.done is closed only after
// the monitor has finalized.
func (m *Manager) drive(ctx context.Context, rc *runContext, sched *scheduler, sess *monitor.Session) {
	defer m.wg.Done()
	defer activeRuns.Dec()

	err := sched.Run(ctx)

	outcome := recording.RunFinished
	if err != nil {
		outcome = recording.RunCancelled
	}

	if outcome == recording.RunFinished {
		m.deps.Events.Broadcast(broadcast.Event{
			RunID:    rc.runID,
			DesignID: rc.designID,
			Status:   broadcast.StatusAllFinished,
		})
	}

	if sess != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), m.opts.MonitorStop)
		if err := sess.Stop(stopCtx, outcome); err != nil {
			m.logger.Warn("monitor cycle aborted at stop", "run_id", rc.runID, "error", err)
		}
		cancel()
	}

	if outcome == recording.RunCancelled {
		m.deps.Events.Broadcast(broadcast.Event{
			RunID:    rc.runID,
			DesignID: rc.designID,
			Status:   broadcast.StatusCancelled,
		})
	}

	runsEnded.WithLabelValues(outcome).Inc()
	m.logger.Info("run ended",
		"run_id", rc.runID,
		"design_id", rc.designID,
		"outcome", outcome,
		"duration", time.Since(rc.started),
	)

	m.mu.Lock()
	if m.active[rc.designID] == rc {
		delete(m.active, rc.designID)
	}
	m.mu.Unlock()
	rc.cancel()
	close(rc.done)
}

// CancelRun cancels the design's live run and waits for its teardown.
func (m *Manager) CancelRun(ctx context.Context, designID string) error {
	m.mu.Lock()
	rc := m.active[designID]
	m.mu.Unlock()
	if rc == nil {
		return ErrNoActiveRun
	}

	rc.cancel()
	select {
	case <-rc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the design's live run, if any.
func (m *Manager) Active(designID string) (RunInfo, bool) {
	m.mu.Lock()
	rc := m.active[designID]
	recorded := rc != nil && rc.monitor != nil
	m.mu.Unlock()
	if rc == nil {
		return RunInfo{}, false
	}
	return RunInfo{
		RunID:     rc.runID,
		DesignID:  rc.designID,
		StartedAt: rc.started,
		Recording: recorded,
		Progress:  rc.state.progress(rc.graph),
	}, true
}

// ActiveCount returns the number of live runs.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Status returns the latest status snapshot of the design's most recent run.
func (m *Manager) Status(designID string) (broadcast.Snapshot, bool) {
	return m.deps.Events.DesignSnapshot(designID)
}

// RunStatus returns the latest status snapshot of a run.
func (m *Manager) RunStatus(runID string) (broadcast.Snapshot, bool) {
	return m.deps.Events.RunSnapshot(runID)
}

// SubscribeDesign delivers events of every run of a design to s.
func (m *Manager) SubscribeDesign(designID string, s broadcast.Subscriber) {
	m.deps.Events.Subscribe(broadcast.DesignKey(designID), s)
}

// SubscribeRun delivers events of one run to s.
func (m *Manager) SubscribeRun(runID string, s broadcast.Subscriber) {
	m.deps.Events.Subscribe(broadcast.RunKey(runID), s)
}

// Unsubscribe removes s from key. Unknown subscribers are ignored.
func (m *Manager) Unsubscribe(key broadcast.Key, s broadcast.Subscriber) {
	m.deps.Events.Unsubscribe(key, s)
}

// Close cancels every live run and waits for all of them to tear down.
// StartRun fails with ErrManagerClosed afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
