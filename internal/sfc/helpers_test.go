package sfc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/actuator"
	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
)

// eventLog is an Emitter that keeps every event.
type eventLog struct {
	mu     sync.Mutex
	events []broadcast.Event
	at     []time.Time
}

func (l *eventLog) Broadcast(e broadcast.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	l.at = append(l.at, time.Now())
}

func (l *eventLog) all() []broadcast.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]broadcast.Event(nil), l.events...)
}

// first returns when the node first reached status, or the zero time.
func (l *eventLog) first(nodeID, status string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e.NodeID == nodeID && e.Status == status {
			return l.at[i]
		}
	}
	return time.Time{}
}

func (l *eventLog) statuses(nodeID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.NodeID != nodeID {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == e.Status {
			continue
		}
		out = append(out, e.Status)
	}
	return out
}

// fakeRamper sleeps for the ramp duration and records requests.
type fakeRamper struct {
	mu    sync.Mutex
	ramps []actuator.Ramp
	err   error
}

func (f *fakeRamper) Ramp(ctx context.Context, r actuator.Ramp) error {
	f.mu.Lock()
	f.ramps = append(f.ramps, r)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return sleep(ctx, r.Duration)
}

func (f *fakeRamper) calls() []actuator.Ramp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]actuator.Ramp(nil), f.ramps...)
}

func waitNode(id string, secs float64) design.Node {
	return design.Node{ID: id, Type: "wait", Data: design.NodeData{
		Wait: &design.WaitConfig{Time: design.SecondsOf(secs)},
	}}
}

func setNode(id, variable, start, end string, secs float64) design.Node {
	return design.Node{ID: id, Type: "setvalue", Data: design.NodeData{
		SetValue: &design.SetValueConfig{
			Variable:   variable,
			StartValue: design.Text(start),
			EndValue:   design.Text(end),
			Time:       design.SecondsOf(secs),
		},
	}}
}

func passive(id, kind string) design.Node {
	return design.Node{ID: id, Type: kind}
}

func edge(src, dst string) design.Edge {
	return design.Edge{Source: src, Target: dst}
}

// chartStore serves charts from memory.
type chartStore struct {
	mu     sync.Mutex
	charts map[string]design.Chart
}

func (s *chartStore) Load(_ context.Context, id string) (design.Chart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charts[id]
	if !ok {
		return design.Chart{}, design.ErrDesignNotFound
	}
	c.DesignID = id
	return c, nil
}

type staticServer struct {
	cfg *catalog.ServerConfig
}

func (s staticServer) GetServerConfig(context.Context) (catalog.ServerConfig, error) {
	if s.cfg == nil {
		return catalog.ServerConfig{}, catalog.ErrNoServerConfig
	}
	return *s.cfg, nil
}

type staticTracking struct {
	vars []catalog.TrackedVariable
	err  error
}

func (s staticTracking) TrackedVariables(context.Context) ([]catalog.TrackedVariable, error) {
	return s.vars, s.err
}

var errRampFailed = errors.New("write rejected")

var fastOptions = Options{
	Executor:  ExecutorOptions{Heartbeat: 10 * time.Millisecond, StepsPerSecond: 10},
	Scheduler: SchedulerOptions{IdleWait: 5 * time.Millisecond, Settle: time.Millisecond},

	MonitorStop: 50 * time.Millisecond,
}
