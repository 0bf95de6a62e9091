package broadcast

import (
	"sync"
)

// Subscriber receives events. Send must not block for long; a non-nil
// error unsubscribes it.
type Subscriber interface {
	Send(e Event) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Key identifies a subscription channel.
type Key string

// RunKey addresses the events of one run.
func RunKey(runID string) Key { return Key("run:" + runID) }

// DesignKey addresses the events of every run of one design.
func DesignKey(designID string) Key { return Key("design:" + designID) }

// Broadcaster is a keyed publish/subscribe hub with status snapshots.
//
// Thread Safety: all methods are safe for concurrent use.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[Key]map[Subscriber]struct{}
	sinks     []Subscriber
	runs      map[string]*Snapshot
	latestRun map[string]string // design id -> run id
	logger    Logger
}

// New creates an empty broadcaster.
func New(logger Logger) *Broadcaster {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Broadcaster{
		subs:      make(map[Key]map[Subscriber]struct{}),
		runs:      make(map[string]*Snapshot),
		latestRun: make(map[string]string),
		logger:    logger,
	}
}

// AddSink registers a subscriber that receives every event and is never
// dropped. Used for mirrors such as MQTT.
func (b *Broadcaster) AddSink(s Subscriber) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Subscribe adds s to key. Subscribing twice is a no-op.
func (b *Broadcaster) Subscribe(key Key, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[key]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.subs[key] = set
	}
	set[s] = struct{}{}
}

// Unsubscribe removes s from key. Unknown subscribers are ignored.
func (b *Broadcaster) Unsubscribe(key Key, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(key, s)
}

func (b *Broadcaster) unsubscribeLocked(key Key, s Subscriber) {
	set, ok := b.subs[key]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, key)
	}
}

// SubscriberCount returns the number of subscribers on key.
func (b *Broadcaster) SubscriberCount(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

// Begin installs an empty snapshot for a new run and makes it the design's
// current run. The previous run's snapshot is discarded.
func (b *Broadcaster) Begin(runID, designID string, nodeIDs []string) {
	snap := &Snapshot{
		RunID:    runID,
		DesignID: designID,
		Status:   StatusRunning,
		Nodes:    make(map[string]NodeStatus, len(nodeIDs)),
	}
	for _, id := range nodeIDs {
		snap.Nodes[id] = NodeStatus{Status: StatusPending}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.latestRun[designID]; ok && prev != runID {
		delete(b.runs, prev)
	}
	b.runs[runID] = snap
	b.latestRun[designID] = runID
}

// Broadcast records e in its run's snapshot and delivers it to the run's
// and the design's subscribers. Subscribers whose Send fails are removed.
func (b *Broadcaster) Broadcast(e Event) {
	runKey, designKey := RunKey(e.RunID), DesignKey(e.DesignID)

	b.mu.Lock()
	if snap, ok := b.runs[e.RunID]; ok {
		snap.apply(e)
	}
	targets := make(map[Subscriber][]Key)
	for s := range b.subs[runKey] {
		targets[s] = append(targets[s], runKey)
	}
	for s := range b.subs[designKey] {
		targets[s] = append(targets[s], designKey)
	}
	sinks := append([]Subscriber(nil), b.sinks...)
	b.mu.Unlock()

	var failed []Subscriber
	for s := range targets {
		if err := s.Send(e); err != nil {
			b.logger.Debug("dropping subscriber", "run_id", e.RunID, "error", err)
			failed = append(failed, s)
		}
	}
	for _, s := range sinks {
		if err := s.Send(e); err != nil {
			b.logger.Warn("event sink failed", "run_id", e.RunID, "error", err)
		}
	}

	if len(failed) == 0 {
		return
	}
	b.mu.Lock()
	for _, s := range failed {
		for _, key := range targets[s] {
			b.unsubscribeLocked(key, s)
		}
	}
	b.mu.Unlock()
}

// RunSnapshot returns a copy of a run's latest status.
func (b *Broadcaster) RunSnapshot(runID string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.runs[runID]
	if !ok {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

// DesignSnapshot returns a copy of the design's current run status.
func (b *Broadcaster) DesignSnapshot(designID string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	runID, ok := b.latestRun[designID]
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := b.runs[runID]
	if !ok {
		return Snapshot{}, false
	}
	return snap.clone(), true
}
