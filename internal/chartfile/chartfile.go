package chartfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/nerrad567/gray-logic-sfc/internal/design"
)

// Canvas spacing for imported nodes.
const (
	columnWidth = 260
	rowHeight   = 120
)

var (
	// ErrUnknownKind is returned for a step kind the executor does not know.
	ErrUnknownKind = errors.New("chartfile: unknown step kind")

	// ErrUnknownStep is returned when "after" names a step that does not exist.
	ErrUnknownStep = errors.New("chartfile: unknown step in after")

	// ErrDuplicateStep is returned when two steps share a label.
	ErrDuplicateStep = errors.New("chartfile: duplicate step")
)

var kinds = map[string]bool{
	"start": true, "end": true, "condition": true, "setvalue": true, "wait": true,
}

type hclChartFile struct {
	Name        string     `hcl:"name,optional"`
	Description string     `hcl:"description,optional"`
	Steps       []*hclStep `hcl:"step,block"`
}

type hclStep struct {
	ID       string     `hcl:"id,label"`
	Kind     string     `hcl:"kind"`
	Variable *string    `hcl:"variable,optional"`
	Start    *cty.Value `hcl:"start,optional"`
	End      *cty.Value `hcl:"end,optional"`
	Duration *float64   `hcl:"duration,optional"`
	After    []string   `hcl:"after,optional"`
}

// File is a decoded chart file.
type File struct {
	Name        string
	Description string
	Chart       design.Chart
}

// ParseFile reads and decodes an HCL chart file.
func ParseFile(path string) (*File, error) {
	src, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("reading chart file: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes HCL chart source. filename is used in diagnostics.
func Parse(filename string, src []byte) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	var parsed hclChartFile
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	out := &File{
		Name:        parsed.Name,
		Description: parsed.Description,
		Chart:       design.Chart{Nodes: []design.Node{}, Edges: []design.Edge{}},
	}

	index := make(map[string]int, len(parsed.Steps))
	for i, st := range parsed.Steps {
		if _, dup := index[st.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, st.ID)
		}
		index[st.ID] = i

		node, err := stepNode(st)
		if err != nil {
			return nil, err
		}
		out.Chart.Nodes = append(out.Chart.Nodes, node)
	}

	for _, st := range parsed.Steps {
		for _, dep := range st.After {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: step %q waits for %q", ErrUnknownStep, st.ID, dep)
			}
			out.Chart.Edges = append(out.Chart.Edges, design.Edge{
				ID:     dep + "->" + st.ID,
				Source: dep,
				Target: st.ID,
			})
		}
	}

	layout(out.Chart, parsed.Steps, index)
	return out, nil
}

func stepNode(st *hclStep) (design.Node, error) {
	if !kinds[st.Kind] {
		return design.Node{}, fmt.Errorf("%w: step %q has kind %q", ErrUnknownKind, st.ID, st.Kind)
	}
	node := design.Node{ID: st.ID, Type: st.Kind, Data: design.NodeData{Label: st.ID}}

	var secs design.Seconds
	if st.Duration != nil {
		secs = design.SecondsOf(*st.Duration)
	}

	switch st.Kind {
	case "setvalue":
		start, err := text(st.Start)
		if err != nil {
			return design.Node{}, fmt.Errorf("step %q start: %w", st.ID, err)
		}
		end, err := text(st.End)
		if err != nil {
			return design.Node{}, fmt.Errorf("step %q end: %w", st.ID, err)
		}
		cfg := &design.SetValueConfig{StartValue: start, EndValue: end, Time: secs}
		if st.Variable != nil {
			cfg.Variable = *st.Variable
		}
		node.Data.SetValue = cfg
	case "wait":
		node.Data.Wait = &design.WaitConfig{Time: secs}
	}
	return node, nil
}

// text converts a number, bool or string attribute to its text form.
func text(v *cty.Value) (design.Text, error) {
	if v == nil || v.IsNull() {
		return "", nil
	}
	s, err := convert.Convert(*v, cty.String)
	if err != nil {
		return "", err
	}
	if !s.IsKnown() || s.IsNull() {
		return "", nil
	}
	return design.Text(s.AsString()), nil
}

// layout places each node in a column by dependency depth. Steps can only
// depend on earlier ones to get a deeper column; cycles keep column 0.
func layout(c design.Chart, steps []*hclStep, index map[string]int) {
	depth := make([]int, len(steps))
	for i, st := range steps {
		for _, dep := range st.After {
			if j := index[dep]; j < i && depth[j]+1 > depth[i] {
				depth[i] = depth[j] + 1
			}
		}
	}
	rows := make(map[int]int)
	for i := range c.Nodes {
		d := depth[i]
		c.Nodes[i].Position = &design.Position{X: float64(d * columnWidth), Y: float64(rows[d] * rowHeight)}
		rows[d]++
	}
}

// Design converts the file into a design ready to be created.
func (f *File) Design() (*design.Design, error) {
	nodes, err := json.Marshal(f.Chart.Nodes)
	if err != nil {
		return nil, fmt.Errorf("encoding nodes: %w", err)
	}
	edges, err := json.Marshal(f.Chart.Edges)
	if err != nil {
		return nil, fmt.Errorf("encoding edges: %w", err)
	}
	return &design.Design{
		Name:        f.Name,
		Description: f.Description,
		Nodes:       nodes,
		Edges:       edges,
	}, nil
}

// Diagnostics returns the HCL diagnostics wrapped in err, if any.
func Diagnostics(err error) hcl.Diagnostics {
	var diags hcl.Diagnostics
	if errors.As(err, &diags) {
		return diags
	}
	return nil
}
