package sfc

import "sync"

// Progress counts a run's executable nodes by phase.
type Progress struct {
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Finished int `json:"finished"`
}

// runState tracks which phase each executable node is in. A node is in at
// most one set at a time and never leaves finished.
type runState struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	running  map[string]struct{}
	finished map[string]struct{}
}

// newRunState puts every executable node in pending. Nodes that are not
// executable are finished from the start.
func newRunState(g *Graph) *runState {
	s := &runState{
		pending:  make(map[string]struct{}),
		running:  make(map[string]struct{}),
		finished: make(map[string]struct{}),
	}
	for _, id := range g.order {
		if g.nodes[id].Kind.Executable() {
			s.pending[id] = struct{}{}
		} else {
			s.finished[id] = struct{}{}
		}
	}
	return s
}

// runnable returns pending nodes whose predecessors have all finished,
// in chart order.
func (s *runState) runnable(g *Graph) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range g.order {
		if _, ok := s.pending[id]; !ok {
			continue
		}
		ready := true
		for _, pred := range g.Predecessors(id) {
			if _, done := s.finished[pred]; !done {
				ready = false
				break
			}
		}
		if ready {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *runState) start(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	s.running[id] = struct{}{}
}

// complete moves a node out of running. Done outcomes finish it; a
// cancelled node goes back to pending.
func (s *runState) complete(id string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
	if o.Done() {
		s.finished[id] = struct{}{}
		return
	}
	s.pending[id] = struct{}{}
}

func (s *runState) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.running) == 0
}

func (s *runState) isFinished(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.finished[id]
	return ok
}

// progress counts executable nodes only.
func (s *runState) progress(g *Graph) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{Pending: len(s.pending), Running: len(s.running)}
	for id := range s.finished {
		if g.nodes[id].Kind.Executable() {
			p.Finished++
		}
	}
	return p
}
