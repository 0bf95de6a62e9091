package design

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDuration applies when a node has no time configured.
const DefaultDuration = time.Second

// Chart is the executable content of a design.
type Chart struct {
	DesignID string
	Nodes    []Node
	Edges    []Edge
}

// Node is one chart node as authored in the designer.
type Node struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Position *Position `json:"position,omitempty"`
	Data     NodeData  `json:"data"`
}

// Position is the node's place on the designer canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the per-kind configuration. Unused sections are nil.
type NodeData struct {
	Label    string          `json:"label,omitempty"`
	SetValue *SetValueConfig `json:"setValueConfig,omitempty"`
	Wait     *WaitConfig     `json:"waitConfig,omitempty"`
}

// SetValueConfig configures a ramp.
type SetValueConfig struct {
	// Variable is the short or full variable id. Empty means the node only
	// waits for its duration.
	Variable   string  `json:"opcNode"`
	StartValue Text    `json:"startValue"`
	EndValue   Text    `json:"endValue"`
	Time       Seconds `json:"time"`
}

// WaitConfig configures a pause.
type WaitConfig struct {
	Time Seconds `json:"time"`
}

// Edge orders two nodes: Source must finish before Target starts.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Text accepts a JSON string, number or boolean and keeps its text form.
// null decodes to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*t = Text(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*t = Text(n.String())
	}
	return nil
}

// Seconds is a duration in seconds authored as a number or a numeric
// string. It is kept raw so a bad value fails the node at execution time
// instead of failing the whole chart at load time.
type Seconds struct {
	raw json.RawMessage
}

// SecondsOf builds a Seconds from a float.
func SecondsOf(s float64) Seconds {
	return Seconds{raw: json.RawMessage(strconv.FormatFloat(s, 'f', -1, 64))}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler. An unset value encodes as null.
func (s Seconds) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// Duration converts the value. Absent or null means DefaultDuration.
// Negative values clamp to zero.
func (s Seconds) Duration() (time.Duration, error) {
	raw := bytes.TrimSpace(s.raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return DefaultDuration, nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, raw)
		}
	} else {
		text = string(raw)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	if f < 0 {
		f = 0
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Nominal returns the node's configured duration, or 0 if it cannot be
// converted.
func (n Node) Nominal() time.Duration {
	var s Seconds
	switch {
	case n.Data.SetValue != nil:
		s = n.Data.SetValue.Time
	case n.Data.Wait != nil:
		s = n.Data.Wait.Time
	}
	d, err := s.Duration()
	if err != nil {
		return 0
	}
	return d
}

// DecodeChart parses designer JSON. Empty input means an empty list.
// Every node needs a unique, non-empty id.
func DecodeChart(designID string, nodes, edges []byte) (Chart, error) {
	c := Chart{DesignID: designID, Nodes: []Node{}, Edges: []Edge{}}

	if len(bytes.TrimSpace(nodes)) > 0 {
		if err := json.Unmarshal(nodes, &c.Nodes); err != nil {
			return Chart{}, fmt.Errorf("%w: nodes: %v", ErrInvalidChart, err) //nolint:errorlint // decode detail only
		}
	}
	if len(bytes.TrimSpace(edges)) > 0 {
		if err := json.Unmarshal(edges, &c.Edges); err != nil {
			return Chart{}, fmt.Errorf("%w: edges: %v", ErrInvalidChart, err) //nolint:errorlint // decode detail only
		}
	}
	if c.Nodes == nil {
		c.Nodes = []Node{}
	}
	if c.Edges == nil {
		c.Edges = []Edge{}
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.ID == "" {
			return Chart{}, fmt.Errorf("%w: node %d has no id", ErrInvalidChart, i)
		}
		if seen[n.ID] {
			return Chart{}, fmt.Errorf("%w: duplicate node id %q", ErrInvalidChart, n.ID)
		}
		seen[n.ID] = true
	}
	return c, nil
}
