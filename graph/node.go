// Package graph defines the workflow graph model: typed nodes, pins, wires,
// and the per-run collaborator context. Execution lives in the engine
// package; node implementations live in the nodes package.
package graph

import (
	"context"

	"github.com/loomworks/loom/types"
)

// Scheduling priorities. Higher runs first; ties break by declaration order.
const (
	// PriorityDefault is the priority of ordinary nodes.
	PriorityDefault = 5000
	// PriorityPanic makes panic nodes preempt everything except previews.
	PriorityPanic = 9000
	// PriorityPreview makes preview sinks run before any other ready node.
	PriorityPreview = 9999
)

// InPin declares an input pin. An empty Accepts set admits any kind.
type InPin struct {
	Name    string
	Accepts []types.Kind
}

// Admits reports whether a value of kind k may be wired into this pin.
// Placeholder sources are always admissible: their concrete kind is only
// known at runtime.
func (p InPin) Admits(k types.Kind) bool {
	if len(p.Accepts) == 0 || k == types.KindPlaceholder {
		return true
	}
	for _, a := range p.Accepts {
		if a == k {
			return true
		}
	}
	return false
}

// IsFailure reports whether the pin is a failure handler input, the only
// place the engine routes failure values to.
func (p InPin) IsFailure() bool {
	for _, a := range p.Accepts {
		if a == types.KindFailure {
			return true
		}
	}
	return false
}

// OutPin declares an output pin with one concrete kind. KindPlaceholder
// marks a dynamic output whose kind is only known after execution.
type OutPin struct {
	Name string
	Kind types.Kind
}

// PinSet is a node's declared pin layout. Pin indices are positions in
// these slices and stay stable for the life of the graph.
type PinSet struct {
	Inputs  []InPin
	Outputs []OutPin
}

// ReadyView is what a readiness predicate may inspect: which input pins are
// wired and which already hold a value.
type ReadyView interface {
	// InputCount returns the number of declared input pins.
	InputCount() int
	// Connected reports whether the pin has an incoming wire.
	Connected(pin int) bool
	// Bound reports whether the pin holds a value.
	Bound(pin int) bool
}

// DefaultReady is the standard readiness rule: every connected input pin
// holds a value. Nodes with no connected inputs are ready immediately.
func DefaultReady(v ReadyView) bool {
	for i := 0; i < v.InputCount(); i++ {
		if v.Connected(i) && !v.Bound(i) {
			return false
		}
	}
	return true
}

// Node is the execution contract every graph node satisfies.
//
// Execute receives one value per declared input pin; unbound pins hold the
// empty placeholder. It returns one value per declared output pin. Returning
// a placeholder on a pin binds nothing downstream, which is how branching
// nodes leave untaken branches dry.
type Node interface {
	// Type returns the registered type name, e.g. "text" or "subgraph".
	Type() string
	// Pins returns the declared pin layout.
	Pins() PinSet
	// Ready reports whether the node can execute given the bound inputs.
	// Most nodes delegate to DefaultReady.
	Ready(v ReadyView) bool
	// Execute runs the node.
	Execute(ctx context.Context, rc *RunContext, inputs []types.Value) ([]types.Value, error)
}

// Prioritized overrides the default scheduling priority.
type Prioritized interface {
	Priority() int
}

// SuccessorDemoter lowers the priority of the node's direct successors by
// the returned amount. The adjustment is applied once, when the run starts,
// and reaches exactly one hop.
type SuccessorDemoter interface {
	DemoteBy() int
}

// Titled carries a user-facing label, used in previews and logs.
type Titled interface {
	Title() string
}

// Arriving gives a node the input arrival order alongside the values.
// arrival[i] is the sequence number at which pin i was bound, or -1 for
// unbound pins. Used by first-arrival selectors; everything else implements
// plain Execute.
type Arriving interface {
	ExecuteOrdered(ctx context.Context, rc *RunContext, inputs []types.Value, arrival []int) ([]types.Value, error)
}

// PriorityOf returns the node's scheduling priority.
func PriorityOf(n Node) int {
	if p, ok := n.(Prioritized); ok {
		return p.Priority()
	}
	return PriorityDefault
}

// TitleOf returns the node's label, falling back to its type name.
func TitleOf(n Node) string {
	if t, ok := n.(Titled); ok && t.Title() != "" {
		return t.Title()
	}
	return n.Type()
}
