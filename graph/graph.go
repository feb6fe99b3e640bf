package graph

import (
	"github.com/google/uuid"

	"github.com/loomworks/loom/types"
)

// NodeID identifies a node by its declaration index within one graph.
type NodeID int

// None marks an unset node reference.
const None NodeID = -1

// PinID addresses one pin of one node.
type PinID struct {
	Node NodeID
	Pin  int
}

// Wire connects an output pin to an input pin. Cycles are representable;
// the engine resolves them to a stalled run rather than rejecting them up
// front.
type Wire struct {
	From PinID
	To   PinID
}

// Graph is a workflow definition: an ordered node arena plus wires. The
// structure is mutable while building and must not change during a run.
type Graph struct {
	ID          uuid.UUID
	Name        string
	Description string

	// ChainEligible marks the workflow as a valid chain target.
	ChainEligible bool
	// DefaultModel and DefaultTemperature seed runs that do not override
	// them.
	DefaultModel       string
	DefaultTemperature float64
	// InputSchema documents the expected seed inputs, advisory only.
	InputSchema map[string]any

	nodes    []Node
	wires    []Wire
	start    NodeID
	finish   NodeID
	disabled map[NodeID]bool
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		ID:       uuid.New(),
		Name:     name,
		start:    None,
		finish:   None,
		disabled: make(map[NodeID]bool),
	}
}

// Add appends a node and returns its id.
func (g *Graph) Add(n Node) NodeID {
	g.nodes = append(g.nodes, n)
	return NodeID(len(g.nodes) - 1)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) Node {
	return g.nodes[int(id)]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in declaration order. The slice is shared; do not
// mutate it.
func (g *Graph) Nodes() []Node { return g.nodes }

// Wires returns all wires. The slice is shared; do not mutate it.
func (g *Graph) Wires() []Wire { return g.wires }

// MarkStart records the graph's start node.
func (g *Graph) MarkStart(id NodeID) { g.start = id }

// MarkFinish records the graph's finish node.
func (g *Graph) MarkFinish(id NodeID) { g.finish = id }

// Start returns the start node id, or None.
func (g *Graph) Start() NodeID { return g.start }

// Finish returns the finish node id, or None.
func (g *Graph) Finish() NodeID { return g.finish }

// Disable excludes a node from execution without unwiring it.
func (g *Graph) Disable(id NodeID) { g.disabled[id] = true }

// Enable re-includes a previously disabled node.
func (g *Graph) Enable(id NodeID) { delete(g.disabled, id) }

// Disabled reports whether the node is excluded from execution.
func (g *Graph) Disabled(id NodeID) bool { return g.disabled[id] }

// CheckWire validates a prospective wire against the declared pin layouts.
func (g *Graph) CheckWire(w Wire) error {
	if !g.validPin(w.From.Node) || !g.validPin(w.To.Node) {
		return types.FlowErrorf(types.ErrRequired, "wire references unknown node %d -> %d", w.From.Node, w.To.Node)
	}
	src := g.nodes[w.From.Node].Pins()
	dst := g.nodes[w.To.Node].Pins()
	if w.From.Pin < 0 || w.From.Pin >= len(src.Outputs) {
		return types.FlowErrorf(types.ErrRequired, "node %d has no output pin %d", w.From.Node, w.From.Pin)
	}
	if w.To.Pin < 0 || w.To.Pin >= len(dst.Inputs) {
		return types.FlowErrorf(types.ErrRequired, "node %d has no input pin %d", w.To.Node, w.To.Pin)
	}
	out := src.Outputs[w.From.Pin]
	in := dst.Inputs[w.To.Pin]
	if !in.Admits(out.Kind) {
		return types.FlowErrorf(types.ErrRequired,
			"kind %s from %s.%s not admissible into %s.%s",
			out.Kind, g.nodes[w.From.Node].Type(), out.Name,
			g.nodes[w.To.Node].Type(), in.Name)
	}
	for _, existing := range g.wires {
		if existing.To == w.To {
			return types.FlowErrorf(types.ErrRequired,
				"input pin %s.%s already wired", g.nodes[w.To.Node].Type(), in.Name)
		}
	}
	return nil
}

func (g *Graph) validPin(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Connect wires an output pin to an input pin after admission checking.
// Each input pin accepts at most one wire; outputs may fan out freely.
func (g *Graph) Connect(from, to PinID) error {
	w := Wire{From: from, To: to}
	if err := g.CheckWire(w); err != nil {
		return err
	}
	g.wires = append(g.wires, w)
	return nil
}

// MustConnect is Connect for statically known-good wiring, as in tests and
// builders.
func (g *Graph) MustConnect(from, to PinID) {
	if err := g.Connect(from, to); err != nil {
		panic(err)
	}
}

// WiresInto returns the wires feeding the given node, keyed by input pin.
func (g *Graph) WiresInto(id NodeID) map[int]Wire {
	out := make(map[int]Wire)
	for _, w := range g.wires {
		if w.To.Node == id {
			out[w.To.Pin] = w
		}
	}
	return out
}

// WiresFrom returns the wires leaving the given output pin.
func (g *Graph) WiresFrom(from PinID) []Wire {
	var out []Wire
	for _, w := range g.wires {
		if w.From == from {
			out = append(out, w)
		}
	}
	return out
}

// Successors returns the distinct nodes fed by any output of the given
// node, in wire declaration order.
func (g *Graph) Successors(id NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	var out []NodeID
	for _, w := range g.wires {
		if w.From.Node == id && !seen[w.To.Node] {
			seen[w.To.Node] = true
			out = append(out, w.To.Node)
		}
	}
	return out
}

// Validate checks the structural invariants: exactly one start node, at
// most one finish node, and every wire admissible.
func (g *Graph) Validate() error {
	if g.start == None || !g.validPin(g.start) {
		return types.NewFlowError(types.ErrConfig, "graph has no start node")
	}
	if g.finish != None && !g.validPin(g.finish) {
		return types.FlowErrorf(types.ErrConfig, "finish node %d does not exist", g.finish)
	}
	for _, w := range g.wires {
		src := g.nodes[w.From.Node].Pins().Outputs[w.From.Pin]
		dst := g.nodes[w.To.Node].Pins().Inputs[w.To.Pin]
		if !dst.Admits(src.Kind) {
			return types.FlowErrorf(types.ErrConfig,
				"wire %d.%d -> %d.%d carries inadmissible kind %s",
				w.From.Node, w.From.Pin, w.To.Node, w.To.Pin, src.Kind)
		}
	}
	return nil
}
