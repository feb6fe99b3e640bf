package nodes

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// Select forwards whichever of its inputs arrived first. It is eager: one
// bound input makes it ready, and later arrivals are ignored.
type Select struct {
	base
	arity int
	kind  types.Kind
}

func newSelect(def *graph.NodeDefinition) (graph.Node, error) {
	arity := cfgInt(def.Config, "arity", 2)
	if arity < 2 {
		return nil, types.NewFlowError(types.ErrConfig, "select node needs arity >= 2")
	}
	kind := types.KindText
	if name := cfgString(def.Config, "kind", ""); name != "" {
		k, ok := types.KindByName(name)
		if !ok {
			return nil, types.FlowErrorf(types.ErrConfig, "select node: unknown kind %q", name)
		}
		kind = k
	}
	return &Select{base: baseOf(def), arity: arity, kind: kind}, nil
}

func (n *Select) Type() string { return "select" }

func (n *Select) Pins() graph.PinSet {
	ins := make([]graph.InPin, n.arity)
	for i := range ins {
		ins[i] = graph.InPin{Name: fmt.Sprintf("in%d", i), Accepts: []types.Kind{n.kind}}
	}
	return graph.PinSet{
		Inputs:  ins,
		Outputs: []graph.OutPin{{Name: "out", Kind: n.kind}},
	}
}

// Ready fires on the first bound input.
func (n *Select) Ready(v graph.ReadyView) bool {
	for i := 0; i < v.InputCount(); i++ {
		if v.Bound(i) {
			return true
		}
	}
	return false
}

func (n *Select) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	arrival := make([]int, len(inputs))
	for i := range inputs {
		if inputs[i].IsEmpty() {
			arrival[i] = -1
		}
	}
	return n.ExecuteOrdered(ctx, rc, inputs, arrival)
}

// ExecuteOrdered picks the input with the lowest arrival sequence.
func (n *Select) ExecuteOrdered(ctx context.Context, rc *graph.RunContext, inputs []types.Value, arrival []int) ([]types.Value, error) {
	best := -1
	for i, seq := range arrival {
		if seq < 0 || inputs[i].IsEmpty() {
			continue
		}
		if best == -1 || seq < arrival[best] {
			best = i
		}
	}
	if best == -1 {
		return nil, types.NewFlowError(types.ErrRequired, "select node ran with no bound input")
	}
	return []types.Value{inputs[best]}, nil
}

// Match routes a text value to the output pin of its first matching case.
// Untaken branches emit placeholders and stay dry. Without a default pin a
// non-matching value is dropped entirely.
type Match struct {
	base
	cases      []string
	hasDefault bool
}

func newMatch(def *graph.NodeDefinition) (graph.Node, error) {
	cases := cfgStrings(def.Config, "cases")
	if len(cases) == 0 {
		return nil, types.NewFlowError(types.ErrConfig, "match node needs at least one case")
	}
	return &Match{
		base:       baseOf(def),
		cases:      cases,
		hasDefault: cfgBool(def.Config, "default", false),
	}, nil
}

func (n *Match) Type() string { return "match" }

func (n *Match) Pins() graph.PinSet {
	outs := make([]graph.OutPin, 0, len(n.cases)+1)
	for _, c := range n.cases {
		outs = append(outs, graph.OutPin{Name: c, Kind: types.KindText})
	}
	if n.hasDefault {
		outs = append(outs, graph.OutPin{Name: "(default)", Kind: types.KindText})
	}
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "in", Accepts: []types.Kind{types.KindText}}},
		Outputs: outs,
	}
}

func (n *Match) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Match) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "in")
	if err != nil {
		return nil, err
	}
	text, ok := in.AsText()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "match node needs a text input")
	}

	count := len(n.cases)
	if n.hasDefault {
		count++
	}
	outs := make([]types.Value, count)
	for i := range outs {
		outs[i] = types.Empty()
	}
	for i, c := range n.cases {
		if c == text {
			outs[i] = in
			return outs, nil
		}
	}
	if n.hasDefault {
		outs[count-1] = in
	}
	return outs, nil
}

// Fallback substitutes an alternative value when its watched branch fails.
// It becomes ready only when a failure arrives on its primary pin and then
// mirrors its secondary input.
type Fallback struct {
	base
}

func newFallback(def *graph.NodeDefinition) (graph.Node, error) {
	return &Fallback{base: baseOf(def)}, nil
}

func (n *Fallback) Type() string { return "fallback" }

func (n *Fallback) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "failure", Accepts: []types.Kind{types.KindFailure}},
			{Name: "value"},
		},
		Outputs: []graph.OutPin{{Name: "out", Kind: types.KindPlaceholder}},
	}
}

func (n *Fallback) Ready(v graph.ReadyView) bool {
	if !v.Bound(0) {
		return false
	}
	return !v.Connected(1) || v.Bound(1)
}

func (n *Fallback) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	if _, err := requireInput(inputs, 0, "failure"); err != nil {
		return nil, err
	}
	alt, err := requireInput(inputs, 1, "value")
	if err != nil {
		return nil, err
	}
	return []types.Value{alt}, nil
}

// Demote passes its input through and lowers the priority of its direct
// successors, pushing a branch later in the schedule.
type Demote struct {
	base
	amount int
}

func newDemote(def *graph.NodeDefinition) (graph.Node, error) {
	amount := cfgInt(def.Config, "amount", 1000)
	if amount <= 0 {
		return nil, types.NewFlowError(types.ErrConfig, "demote node needs a positive amount")
	}
	return &Demote{base: baseOf(def), amount: amount}, nil
}

func (n *Demote) Type() string { return "demote" }

func (n *Demote) DemoteBy() int { return n.amount }

func (n *Demote) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "in"}},
		Outputs: []graph.OutPin{{Name: "out", Kind: types.KindPlaceholder}},
	}
}

func (n *Demote) Ready(v graph.ReadyView) bool {
	return v.Connected(0) && v.Bound(0)
}

func (n *Demote) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	return []types.Value{inputs[0]}, nil
}
