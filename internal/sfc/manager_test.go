package sfc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/monitor"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

// chanSubscriber forwards events to a channel.
type chanSubscriber struct {
	ch chan broadcast.Event
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ch: make(chan broadcast.Event, 1024)}
}

func (c *chanSubscriber) Send(e broadcast.Event) error {
	select {
	case c.ch <- e:
		return nil
	default:
		return errors.New("subscriber full")
	}
}

// waitRunStatus waits for a run-level event with the given status.
func (c *chanSubscriber) waitRunStatus(t *testing.T, runID, status string) []broadcast.Event {
	t.Helper()
	var seen []broadcast.Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-c.ch:
			seen = append(seen, e)
			if e.RunID == runID && e.NodeID == "" && e.Status == status {
				return seen
			}
		case <-timeout:
			t.Fatalf("no %q event for run %s", status, runID)
			return nil
		}
	}
}

// runRecorder is a recording Sink and RunLog.
type runRecorder struct {
	mu       sync.Mutex
	created  []string
	finished map[string]string
	samples  int

	// overlaps counts runs created while another was still open.
	overlaps int
}

func (r *runRecorder) CreateRun(_ context.Context, run recording.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) > len(r.finished) {
		r.overlaps++
	}
	r.created = append(r.created, run.ID)
	return nil
}

func (r *runRecorder) FinishRun(_ context.Context, id, status string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]string)
	}
	r.finished[id] = status
	return nil
}

func (r *runRecorder) Append(_ context.Context, s []recording.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += len(s)
	return nil
}

func (r *runRecorder) finishedStatus(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished[id]
}

type managerFixture struct {
	mgr    *Manager
	charts *chartStore
	events *broadcast.Broadcaster
	ramper *fakeRamper
	rec    *runRecorder
	server *variable.MemoryServer
}

func newManagerFixture(t *testing.T, tracked []catalog.TrackedVariable) *managerFixture {
	t.Helper()
	f := &managerFixture{
		charts: &chartStore{charts: map[string]design.Chart{}},
		events: broadcast.New(nil),
		ramper: &fakeRamper{},
		rec:    &runRecorder{},
		server: variable.NewMemoryServer(),
	}
	f.server.Set("ns=3;s=Tank.Level", variable.FloatValue(0))

	mon := monitor.New(f.server, f.rec, f.rec, nil, monitor.Options{Interval: 5 * time.Millisecond}, nil)
	f.mgr = NewManager(Deps{
		Designs:  f.charts,
		Servers:  staticServer{cfg: &catalog.ServerConfig{URL: "mem://plc", Prefix: "ns=3;s=Plant"}},
		Tracking: staticTracking{vars: tracked},
		Monitor:  mon,
		Ramper:   f.ramper,
		Events:   f.events,
	}, fastOptions, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, f.mgr.Close(ctx))
	})
	return f
}

func (f *managerFixture) put(id string, c design.Chart) {
	f.charts.mu.Lock()
	f.charts.charts[id] = c
	f.charts.mu.Unlock()
}

func TestManagerRunToCompletion(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.put("d1", diamond())

	sub := newChanSubscriber()
	f.mgr.SubscribeDesign("d1", sub)

	runID, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	info, ok := f.mgr.Active("d1")
	if ok {
		assert.Equal(t, runID, info.RunID)
		assert.False(t, info.Recording)
	}

	seen := sub.waitRunStatus(t, runID, broadcast.StatusAllFinished)
	assert.NotEmpty(t, seen)

	snap, ok := f.mgr.Status("d1")
	require.True(t, ok)
	assert.Equal(t, broadcast.StatusAllFinished, snap.Status)
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, broadcast.StatusFinished, snap.Nodes[id].Status, id)
	}

	byRun, ok := f.mgr.RunStatus(runID)
	require.True(t, ok)
	assert.Equal(t, snap.Nodes, byRun.Nodes)

	require.Eventually(t, func() bool { return f.mgr.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, f.mgr.CancelRun(context.Background(), "d1"), ErrNoActiveRun)
}

func TestManagerConfigurationErrors(t *testing.T) {
	f := newManagerFixture(t, nil)

	_, err := f.mgr.StartRun(context.Background(), "missing")
	assert.ErrorIs(t, err, design.ErrDesignNotFound)

	f.put("d1", diamond())
	f.mgr.deps.Servers = staticServer{}
	_, err = f.mgr.StartRun(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrNoServer)
	assert.ErrorIs(t, err, catalog.ErrNoServerConfig)
	assert.Equal(t, 0, f.mgr.ActiveCount())
}

func TestManagerSupersedesRun(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("long", 10)}})

	sub := newChanSubscriber()
	f.mgr.SubscribeDesign("d1", sub)

	first, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, ok := f.mgr.RunStatus(first)
		return ok && snap.Nodes["long"].Status == broadcast.StatusRunning
	}, time.Second, time.Millisecond)

	second, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The first run was torn down before the second was installed.
	events := sub.waitRunStatus(t, first, broadcast.StatusCancelled)
	for _, e := range events {
		if e.RunID == first && e.NodeID == "long" {
			assert.NotEqual(t, broadcast.StatusFinished, e.Status)
		}
	}

	info, ok := f.mgr.Active("d1")
	require.True(t, ok)
	assert.Equal(t, second, info.RunID)
	assert.Equal(t, 1, f.mgr.ActiveCount())

	snap, ok := f.mgr.Status("d1")
	require.True(t, ok)
	assert.Equal(t, second, snap.RunID)
	_, ok = f.mgr.RunStatus(first)
	assert.False(t, ok, "superseded snapshot is dropped")

	require.NoError(t, f.mgr.CancelRun(context.Background(), "d1"))
	sub.waitRunStatus(t, second, broadcast.StatusCancelled)
	assert.Equal(t, 0, f.mgr.ActiveCount())
}

func TestManagerRecordsTrackedVariables(t *testing.T) {
	f := newManagerFixture(t, []catalog.TrackedVariable{{ID: "ns=3;s=Tank.Level", DeclaredType: "Float"}})
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("w", 0.05)}})

	sub := newChanSubscriber()
	f.mgr.SubscribeDesign("d1", sub)

	runID, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	sub.waitRunStatus(t, runID, broadcast.StatusAllFinished)

	require.Eventually(t, func() bool {
		return f.rec.finishedStatus(runID) == recording.RunFinished
	}, 2*time.Second, 5*time.Millisecond)

	f.rec.mu.Lock()
	assert.Equal(t, []string{runID}, f.rec.created)
	assert.GreaterOrEqual(t, f.rec.samples, 1)
	f.rec.mu.Unlock()
}

func TestManagerCancelStopsMonitor(t *testing.T) {
	f := newManagerFixture(t, []catalog.TrackedVariable{{ID: "ns=3;s=Tank.Level", DeclaredType: "Float"}})
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("w", 10)}})

	runID, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	info, ok := f.mgr.Active("d1")
	require.True(t, ok)
	assert.True(t, info.Recording)

	require.NoError(t, f.mgr.CancelRun(context.Background(), "d1"))
	assert.Equal(t, recording.RunCancelled, f.rec.finishedStatus(runID), "monitor finalized before CancelRun returned")

	opened, closed := f.server.Sessions()
	assert.Equal(t, opened, closed)
}

func TestManagerSupersedeWaitsForStalledMonitor(t *testing.T) {
	f := newManagerFixture(t, []catalog.TrackedVariable{{ID: "ns=3;s=Tank.Level", DeclaredType: "Float"}})
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("long", 60)}})
	f.server.StallReads(true)

	first, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.server.StalledReads() > 0 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second, err := f.mgr.StartRun(ctx, "d1")
	require.NoError(t, err)

	assert.Equal(t, recording.RunCancelled, f.rec.finishedStatus(first), "first monitor finalized before the second run started")
	assert.Empty(t, f.rec.finishedStatus(second))

	f.rec.mu.Lock()
	assert.Equal(t, 0, f.rec.overlaps)
	f.rec.mu.Unlock()

	opened, closed := f.server.Sessions()
	assert.Equal(t, 1, closed, "the stalled session was closed")
	assert.LessOrEqual(t, opened-closed, 1, "at most one monitor session is live")
}

func TestManagerTrackingFailureDoesNotBlockRun(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.mgr.deps.Tracking = staticTracking{err: errors.New("db locked")}
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("w", 0.01)}})

	sub := newChanSubscriber()
	f.mgr.SubscribeDesign("d1", sub)
	runID, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	sub.waitRunStatus(t, runID, broadcast.StatusAllFinished)
}

func TestManagerSubscribeRunAndUnsubscribe(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("w", 0.03)}})

	designSub := newChanSubscriber()
	f.mgr.SubscribeDesign("d1", designSub)
	f.mgr.Unsubscribe(broadcast.DesignKey("d1"), designSub)
	f.mgr.Unsubscribe(broadcast.DesignKey("d1"), designSub)

	runID, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)

	runSub := newChanSubscriber()
	f.mgr.SubscribeRun(runID, runSub)
	runSub.waitRunStatus(t, runID, broadcast.StatusAllFinished)

	assert.Empty(t, designSub.ch)
}

func TestManagerClose(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.put("d1", design.Chart{Nodes: []design.Node{waitNode("w", 10)}})
	f.put("d2", design.Chart{Nodes: []design.Node{waitNode("w", 10)}})

	_, err := f.mgr.StartRun(context.Background(), "d1")
	require.NoError(t, err)
	_, err = f.mgr.StartRun(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, 2, f.mgr.ActiveCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.mgr.Close(ctx))
	assert.Equal(t, 0, f.mgr.ActiveCount())

	_, err = f.mgr.StartRun(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
