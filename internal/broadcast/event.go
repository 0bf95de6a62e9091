package broadcast

import "time"

// Node and run statuses carried by events.
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusFinished    = "finished"
	StatusError       = "error"
	StatusAllFinished = "all_finished"
	StatusCancelled   = "cancelled"
)

// Event is one status change. NodeID is empty for run-level events.
type Event struct {
	RunID       string   `json:"run_id"`
	DesignID    string   `json:"design_id"`
	NodeID      string   `json:"node_id,omitempty"`
	Status      string   `json:"status"`
	ElapsedTime *float64 `json:"elapsed_time,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Elapsed returns d in seconds rounded to hundredths, for Event.ElapsedTime.
func Elapsed(d time.Duration) *float64 {
	s := float64(d.Round(10*time.Millisecond)) / float64(time.Second)
	return &s
}

// NodeStatus is the latest known state of one node.
type NodeStatus struct {
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"`
	ElapsedTime *float64 `json:"elapsed_time,omitempty"`
}

// Snapshot is the queryable state of one run.
type Snapshot struct {
	RunID    string                `json:"run_id"`
	DesignID string                `json:"design_id"`
	Status   string                `json:"status"`
	Nodes    map[string]NodeStatus `json:"nodes"`
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	out.Nodes = make(map[string]NodeStatus, len(s.Nodes))
	for k, v := range s.Nodes {
		out.Nodes[k] = v
	}
	return out
}

// apply folds an event into the snapshot. Elapsed time and error survive
// events that omit them, so a heartbeat never erases an error message.
func (s *Snapshot) apply(e Event) {
	if e.NodeID == "" {
		s.Status = e.Status
		return
	}
	ns := s.Nodes[e.NodeID]
	ns.Status = e.Status
	if e.ElapsedTime != nil {
		ns.ElapsedTime = e.ElapsedTime
	}
	if e.Error != "" {
		ns.Error = e.Error
	}
	s.Nodes[e.NodeID] = ns
}
