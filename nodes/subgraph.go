package nodes

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// Subgraph flavors.
const (
	FlavorSimple    = "simple"
	FlavorIterative = "iterative"
)

// Subgraph runs an embedded workflow. Its input pins mirror the embedded
// start node's outputs and its output pins mirror the embedded finish
// node's inputs, plus a trailing failure pin handlers can watch.
//
// The iterative flavor maps the embedded graph over its list inputs: one
// nested run per element, scalars broadcast, results gathered back into
// lists. When every bound input is a scalar the node degrades to a single
// simple run.
type Subgraph struct {
	base
	inner     *graph.Graph
	iterative bool
}

func newSubgraph(def *graph.NodeDefinition) (graph.Node, error) {
	if def.Subgraph == nil {
		return nil, types.NewFlowError(types.ErrConfig, "subgraph node needs an embedded definition")
	}
	inner, err := def.Subgraph.Build()
	if err != nil {
		return nil, types.NewFlowError(types.ErrConfig, "invalid embedded workflow").WithCause(err)
	}
	switch def.Flavor {
	case "", FlavorSimple, FlavorIterative:
	default:
		return nil, types.FlowErrorf(types.ErrConfig, "unknown subgraph flavor %q", def.Flavor)
	}
	return &Subgraph{
		base:      baseOf(def),
		inner:     inner,
		iterative: def.Flavor == FlavorIterative,
	}, nil
}

// NewSubgraphNode builds a subgraph node over an already constructed graph,
// for programmatic graph assembly.
func NewSubgraphNode(inner *graph.Graph, iterative bool) *Subgraph {
	return &Subgraph{inner: inner, iterative: iterative}
}

func (n *Subgraph) Type() string { return "subgraph" }

// Inner returns the embedded graph.
func (n *Subgraph) Inner() *graph.Graph { return n.inner }

func (n *Subgraph) startOutputs() []graph.OutPin {
	return n.inner.Node(n.inner.Start()).Pins().Outputs
}

func (n *Subgraph) finishInputs() []graph.InPin {
	if n.inner.Finish() == graph.None {
		return nil
	}
	return n.inner.Node(n.inner.Finish()).Pins().Inputs
}

func (n *Subgraph) Pins() graph.PinSet {
	var ins []graph.InPin
	for _, out := range n.startOutputs() {
		pin := graph.InPin{Name: out.Name}
		if out.Kind != types.KindPlaceholder {
			if n.iterative {
				// Lists drive the iteration; scalars broadcast.
				pin.Accepts = []types.Kind{out.Kind.ListOf(), out.Kind}
			} else {
				pin.Accepts = []types.Kind{out.Kind}
			}
		}
		ins = append(ins, pin)
	}

	var outs []graph.OutPin
	for _, in := range n.finishInputs() {
		kind := types.KindPlaceholder
		if len(in.Accepts) == 1 {
			kind = in.Accepts[0]
		}
		if n.iterative {
			kind = kind.ListOf()
		}
		outs = append(outs, graph.OutPin{Name: in.Name, Kind: kind})
	}
	outs = append(outs, graph.OutPin{Name: "failure", Kind: types.KindFailure})

	return graph.PinSet{Inputs: ins, Outputs: outs}
}

func (n *Subgraph) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Subgraph) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	if n.iterative {
		iters, listBound, err := n.iterationCount(inputs)
		if err != nil {
			return nil, err
		}
		if listBound {
			return n.runIterative(ctx, rc, inputs, iters)
		}
	}
	outs, err := n.runOnce(ctx, rc, inputs)
	if err != nil {
		return nil, err
	}
	return append(outs, types.Empty()), nil
}

// iterationCount derives N from the bound list inputs. Every bound list
// must have the same length.
func (n *Subgraph) iterationCount(inputs []types.Value) (int, bool, error) {
	count := -1
	for i, v := range inputs {
		length, ok := v.ListLen()
		if !ok {
			continue
		}
		if count != -1 && length != count {
			return 0, false, types.FlowErrorf(types.ErrConfig,
				"iteration inputs disagree on length: %q has %d elements, expected %d",
				n.startOutputs()[i].Name, length, count)
		}
		count = length
	}
	return count, count != -1, nil
}

// runOnce executes one nested run seeded with the given inputs and returns
// the embedded finish outputs in pin order.
func (n *Subgraph) runOnce(ctx context.Context, rc *graph.RunContext, seed []types.Value) ([]types.Value, error) {
	eng := engine.New(n.inner, rc.Logger)
	eng.Seed(seed)
	res := eng.Run(ctx, rc.Child())

	switch res.Status {
	case engine.StatusStalled:
		return nil, engine.ErrStuck
	case engine.StatusHalted:
		if types.IsFatal(res.Err) {
			// A nested panic halts every enclosing run untouched.
			return nil, res.Err
		}
		return nil, types.FlowErrorf(types.ErrSubgraph, "nested workflow %q failed", n.inner.Name).WithCause(res.Err)
	}

	pins := n.finishInputs()
	outs := make([]types.Value, len(pins))
	for i, pin := range pins {
		if v, ok := res.Outputs[pin.Name]; ok {
			outs[i] = v
		} else {
			outs[i] = types.Empty()
		}
	}
	return outs, nil
}

// runIterative fans the embedded graph out over the list inputs.
func (n *Subgraph) runIterative(ctx context.Context, rc *graph.RunContext, inputs []types.Value, iters int) ([]types.Value, error) {
	pins := n.finishInputs()
	results := make([][]types.Value, iters)

	grp, grpCtx := errgroup.WithContext(ctx)
	if rc.Concurrency > 0 {
		grp.SetLimit(rc.Concurrency)
	}
	for j := 0; j < iters; j++ {
		grp.Go(func() error {
			seed := make([]types.Value, len(inputs))
			for i, v := range inputs {
				if v.IsEmpty() {
					seed[i] = v
				} else {
					seed[i] = v.ElementAt(j)
				}
			}
			outs, err := n.runOnce(grpCtx, rc, seed)
			if err != nil {
				return err
			}
			results[j] = outs
			return nil
		})
	}
	// Any failed iteration fails the whole node; partial results are
	// discarded with it.
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	outs := make([]types.Value, len(pins)+1)
	for k, pin := range pins {
		// Typed finish pins seed the accumulator, so a column where every
		// iteration filtered itself out still binds an empty list.
		acc := types.Empty()
		if len(pin.Accepts) == 1 {
			acc = types.EmptyListOf(pin.Accepts[0].ListOf())
		}
		for j := 0; j < iters; j++ {
			item := results[j][k]
			if acc.IsEmpty() && !item.IsEmpty() {
				acc = types.EmptyListOf(item.Kind().ListOf())
			}
			acc = types.Push(acc, item)
		}
		outs[k] = acc
	}
	outs[len(pins)] = types.Empty()
	return outs, nil
}
