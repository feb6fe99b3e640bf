package graph

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/types"
)

// Reserved node type names the loader treats specially.
const (
	// TypeStart is the type name of the start node; every graph has
	// exactly one.
	TypeStart = "start"
	// TypeFinish is the type name of the finish node; a graph has at most
	// one.
	TypeFinish = "finish"
)

// Definition is the serializable form of a workflow graph. Workflow stores
// persist definitions; the engine runs graphs built from them.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Chain       bool           `yaml:"chain,omitempty" json:"chain,omitempty"`
	Model       string         `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature float64        `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Schema      map[string]any `yaml:"schema,omitempty" json:"schema,omitempty"`

	Nodes []NodeDefinition `yaml:"nodes" json:"nodes"`
	Wires []WireDefinition `yaml:"wires,omitempty" json:"wires,omitempty"`
}

// NodeDefinition is one serialized node. Config carries type-specific
// fields the node factory decodes.
type NodeDefinition struct {
	Type     string         `yaml:"type" json:"type"`
	Title    string         `yaml:"title,omitempty" json:"title,omitempty"`
	Disabled bool           `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Config   map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	// Subgraph nests a full definition for subgraph nodes; Flavor selects
	// simple or iterative execution.
	Subgraph *Definition `yaml:"subgraph,omitempty" json:"subgraph,omitempty"`
	Flavor   string      `yaml:"flavor,omitempty" json:"flavor,omitempty"`
}

// WireDefinition is one serialized wire, addressed by declaration indices.
type WireDefinition struct {
	FromNode int `yaml:"from_node" json:"from_node"`
	FromPin  int `yaml:"from_pin" json:"from_pin"`
	ToNode   int `yaml:"to_node" json:"to_node"`
	ToPin    int `yaml:"to_pin" json:"to_pin"`
}

// Factory builds a node from its serialized definition.
type Factory func(def *NodeDefinition) (Node, error)

var (
	typesMu   sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterType installs a node factory under a type name. Later
// registrations replace earlier ones.
func RegisterType(name string, f Factory) {
	typesMu.Lock()
	defer typesMu.Unlock()
	factories[name] = f
}

// NewNode builds a node from a definition using the registered factory.
func NewNode(def *NodeDefinition) (Node, error) {
	typesMu.RLock()
	f, ok := factories[def.Type]
	typesMu.RUnlock()
	if !ok {
		return nil, types.FlowErrorf(types.ErrConfig, "unknown node type %q", def.Type)
	}
	return f(def)
}

// RegisteredTypes returns the known node type names in sorted order.
func RegisteredTypes() []string {
	typesMu.RLock()
	defer typesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FromYAML parses and validates a workflow definition.
func FromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unmarshal workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ToYAML serializes the definition.
func (d *Definition) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow definition: %w", err)
	}
	return data, nil
}

// Validate checks the structural shape of a definition: a name, exactly one
// start node, at most one finish node, wire indices in range, and nested
// subgraph definitions valid.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return types.NewFlowError(types.ErrConfig, "workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return types.NewFlowError(types.ErrConfig, "workflow must have at least one node")
	}
	starts, finishes := 0, 0
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.Type == "" {
			return types.FlowErrorf(types.ErrConfig, "node %d: type is required", i)
		}
		switch n.Type {
		case TypeStart:
			starts++
		case TypeFinish:
			finishes++
		}
		if n.Subgraph != nil {
			if err := n.Subgraph.Validate(); err != nil {
				return types.FlowErrorf(types.ErrConfig, "node %d: invalid subgraph", i).WithCause(err)
			}
		}
	}
	if starts != 1 {
		return types.FlowErrorf(types.ErrConfig, "workflow needs exactly one start node, got %d", starts)
	}
	if finishes > 1 {
		return types.FlowErrorf(types.ErrConfig, "workflow allows at most one finish node, got %d", finishes)
	}
	for i, w := range d.Wires {
		if w.FromNode < 0 || w.FromNode >= len(d.Nodes) || w.ToNode < 0 || w.ToNode >= len(d.Nodes) {
			return types.FlowErrorf(types.ErrConfig, "wire %d references unknown node", i)
		}
	}
	return nil
}

// Build constructs a runnable graph from the definition: nodes through the
// type registry, then wires with admission checks.
func (d *Definition) Build() (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	g := New(d.Name)
	g.Description = d.Description
	g.ChainEligible = d.Chain
	g.DefaultModel = d.Model
	g.DefaultTemperature = d.Temperature
	g.InputSchema = d.Schema

	for i := range d.Nodes {
		nd := &d.Nodes[i]
		node, err := NewNode(nd)
		if err != nil {
			return nil, types.FlowErrorf(types.ErrConfig, "node %d (%s)", i, nd.Type).WithCause(err)
		}
		id := g.Add(node)
		if nd.Disabled {
			g.Disable(id)
		}
		switch nd.Type {
		case TypeStart:
			g.MarkStart(id)
		case TypeFinish:
			g.MarkFinish(id)
		}
	}
	for i, w := range d.Wires {
		err := g.Connect(
			PinID{Node: NodeID(w.FromNode), Pin: w.FromPin},
			PinID{Node: NodeID(w.ToNode), Pin: w.ToPin},
		)
		if err != nil {
			return nil, types.FlowErrorf(types.ErrConfig, "wire %d", i).WithCause(err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
