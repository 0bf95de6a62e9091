package sfc

import (
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/design"
)

// Kind is a node kind. The set is closed: every switch over Kind handles
// all five values.
type Kind int

const (
	KindStart Kind = iota
	KindEnd
	KindCondition
	KindSetValue
	KindWait
)

// String returns the designer's name for the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindCondition:
		return "condition"
	case KindSetValue:
		return "setvalue"
	case KindWait:
		return "wait"
	}
	return "unknown"
}

// Executable reports whether nodes of this kind do real work.
func (k Kind) Executable() bool {
	switch k {
	case KindSetValue, KindWait:
		return true
	case KindStart, KindEnd, KindCondition:
		return false
	}
	return false
}

// ParseKind maps a designer node type. Unrecognised types are reported as
// KindCondition with ok false: they pass through like conditions.
func ParseKind(s string) (k Kind, ok bool) {
	switch s {
	case "start":
		return KindStart, true
	case "end":
		return KindEnd, true
	case "condition":
		return KindCondition, true
	case "setvalue":
		return KindSetValue, true
	case "wait":
		return KindWait, true
	}
	return KindCondition, false
}

// Node is a chart node ready for execution.
type Node struct {
	ID   string
	Kind Kind

	// Variable, Start and End configure setvalue nodes.
	Variable string
	Start    string
	End      string

	// Duration is the nominal run time of setvalue and wait nodes.
	// DurationErr is set when the configured time could not be converted;
	// the node then fails when executed.
	Duration    time.Duration
	DurationErr error
}

func nodeFromRecord(rec design.Node) Node {
	kind, _ := ParseKind(rec.Type)
	n := Node{ID: rec.ID, Kind: kind}

	var secs design.Seconds
	switch kind {
	case KindSetValue:
		if cfg := rec.Data.SetValue; cfg != nil {
			n.Variable = cfg.Variable
			n.Start = string(cfg.StartValue)
			n.End = string(cfg.EndValue)
			secs = cfg.Time
		}
	case KindWait:
		if cfg := rec.Data.Wait; cfg != nil {
			secs = cfg.Time
		}
	case KindStart, KindEnd, KindCondition:
		return n
	}
	n.Duration, n.DurationErr = secs.Duration()
	return n
}

// Graph is the dependency structure of one chart. It is immutable once
// built and safe for concurrent reads.
type Graph struct {
	nodes    map[string]Node
	order    []string
	incoming map[string][]string
	outgoing map[string][]string
}

// NewGraph builds a graph from designer records. Edges with a missing
// endpoint are dropped. No cycle detection is performed.
func NewGraph(chart design.Chart) *Graph {
	g := &Graph{
		nodes:    make(map[string]Node, len(chart.Nodes)),
		order:    make([]string, 0, len(chart.Nodes)),
		incoming: make(map[string][]string, len(chart.Nodes)),
		outgoing: make(map[string][]string, len(chart.Nodes)),
	}
	for _, rec := range chart.Nodes {
		if _, dup := g.nodes[rec.ID]; dup {
			continue
		}
		g.nodes[rec.ID] = nodeFromRecord(rec)
		g.order = append(g.order, rec.ID)
	}
	for _, e := range chart.Edges {
		_, okSrc := g.nodes[e.Source]
		_, okDst := g.nodes[e.Target]
		if !okSrc || !okDst {
			continue
		}
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e.Target)
		g.incoming[e.Target] = append(g.incoming[e.Target], e.Source)
	}
	return g
}

// Node returns a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Predecessors returns the ids with an edge into id.
func (g *Graph) Predecessors(id string) []string { return g.incoming[id] }

// Successors returns the ids id has an edge to.
func (g *Graph) Successors(id string) []string { return g.outgoing[id] }

// Executable returns the ids of setvalue and wait nodes in chart order.
func (g *Graph) Executable() []string {
	var ids []string
	for _, id := range g.order {
		if g.nodes[id].Kind.Executable() {
			ids = append(ids, id)
		}
	}
	return ids
}
