// Package engine runs a workflow graph to one of its terminal states. An
// Engine instance is single use: subgraph nodes construct a fresh engine
// for every nested run.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/telemetry"
	"github.com/loomworks/loom/types"
)

// Status is the terminal state of a run.
type Status int

const (
	// StatusCompleted means the run ended normally.
	StatusCompleted Status = iota
	// StatusHalted means an unhandled or fatal failure stopped the run.
	StatusHalted
	// StatusStalled means no node could make progress before the finish
	// node ran.
	StatusStalled
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusHalted:
		return "halted"
	case StatusStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// ExecState tracks one node through a run.
type ExecState int

const (
	// StateWaiting means the node has not run yet.
	StateWaiting ExecState = iota
	// StateCompleted means the node ran successfully.
	StateCompleted
	// StateFailed means the node failed and a handler absorbed it.
	StateFailed
	// StateStuck means a nested run under the node stalled; the node waits
	// forever.
	StateStuck
	// StateDisabled means the node is excluded from the run.
	StateDisabled
)

// ErrStuck is the sentinel a subgraph node returns when its nested run
// stalls. The engine parks the node instead of treating it as failed.
var ErrStuck = errors.New("nested run stalled")

// Result is the outcome of one run.
type Result struct {
	Status Status
	// Outputs holds the finish node's bound inputs, keyed by pin name.
	Outputs map[string]types.Value
	// Err carries the halting failure for StatusHalted runs.
	Err error
}

type binding struct {
	val types.Value
	seq int
	has bool
}

// Engine executes one graph once.
type Engine struct {
	g   *graph.Graph
	log *zap.Logger

	states     []ExecState
	binds      [][]binding
	wiresInto  []map[int]graph.Wire
	priorities []int
	seq        int

	finishRan bool
	outputs   map[string]types.Value
	seed      []types.Value

	used atomic.Bool
}

// New prepares an engine for one run of the graph.
func New(g *graph.Graph, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := g.Len()
	e := &Engine{
		g:          g,
		log:        telemetry.Component(logger, "engine"),
		states:     make([]ExecState, n),
		binds:      make([][]binding, n),
		wiresInto:  make([]map[int]graph.Wire, n),
		priorities: make([]int, n),
		outputs:    make(map[string]types.Value),
	}
	for i, node := range g.Nodes() {
		id := graph.NodeID(i)
		e.binds[i] = make([]binding, len(node.Pins().Inputs))
		e.wiresInto[i] = g.WiresInto(id)
		e.priorities[i] = graph.PriorityOf(node)
		if g.Disabled(id) {
			e.states[i] = StateDisabled
		}
	}
	// Demotions reach exactly one hop: only the demoter's direct
	// successors move, applied once before the run.
	for i, node := range g.Nodes() {
		if d, ok := node.(graph.SuccessorDemoter); ok {
			for _, succ := range g.Successors(graph.NodeID(i)) {
				e.priorities[succ] -= d.DemoteBy()
			}
		}
	}
	return e
}

// Seed pre-binds the start node's outputs and marks it completed, so a
// nested run takes its inputs from the enclosing graph instead of the run
// context. Placeholder seeds bind nothing. Must be called before Run.
func (e *Engine) Seed(vals []types.Value) {
	e.seed = vals
}

// Run executes the graph to a terminal state. The engine must not be
// reused afterwards.
func (e *Engine) Run(ctx context.Context, rc *graph.RunContext) *Result {
	if !e.used.CompareAndSwap(false, true) {
		return &Result{
			Status: StatusHalted,
			Err:    types.NewFlowError(types.ErrConfig, "engine instances are single use"),
		}
	}
	if err := e.g.Validate(); err != nil {
		return &Result{Status: StatusHalted, Err: err}
	}

	started := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "engine.run")
	span.SetAttributes(
		attribute.String("workflow", e.g.Name),
		attribute.Int("depth", rc.Depth),
	)
	defer span.End()

	res := e.loop(ctx, rc)

	telemetry.Metrics().RecordRun(e.g.Name, res.Status.String(), time.Since(started))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Status.String())
	}
	e.log.Info("run finished",
		zap.String("workflow", e.g.Name),
		zap.String("status", res.Status.String()),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(res.Err),
	)
	return res
}

func (e *Engine) loop(ctx context.Context, rc *graph.RunContext) *Result {
	if e.seed != nil && e.g.Start() != graph.None {
		start := e.g.Start()
		e.states[start] = StateCompleted
		e.bindOutputs(start, e.g.Node(start), e.seed)
	}
	for {
		if err := ctx.Err(); err != nil {
			return &Result{
				Status:  StatusHalted,
				Outputs: e.outputs,
				Err:     types.NewFlowError(types.ErrInterrupted, "run cancelled").WithCause(err),
			}
		}

		id, ok := e.pickReady()
		if !ok {
			return e.terminal()
		}
		if halt := e.step(ctx, rc, id); halt != nil {
			return &Result{Status: StatusHalted, Outputs: e.outputs, Err: halt}
		}
	}
}

// pickReady returns the highest-priority ready node, ties broken by
// declaration order.
func (e *Engine) pickReady() (graph.NodeID, bool) {
	best := graph.None
	bestPrio := 0
	for i, node := range e.g.Nodes() {
		if e.states[i] != StateWaiting {
			continue
		}
		if !node.Ready(e.view(graph.NodeID(i))) {
			continue
		}
		if best == graph.None || e.priorities[i] > bestPrio {
			best = graph.NodeID(i)
			bestPrio = e.priorities[i]
		}
	}
	return best, best != graph.None
}

// step runs one node. A non-nil return halts the run.
func (e *Engine) step(ctx context.Context, rc *graph.RunContext, id graph.NodeID) error {
	node := e.g.Node(id)
	inputs, arrival := e.gatherInputs(id)

	if id == e.g.Finish() {
		e.captureOutputs(id, inputs)
	}

	nodeCtx, span := telemetry.Tracer().Start(graph.WithNodeID(ctx, id), "engine.node")
	span.SetAttributes(
		attribute.String("type", node.Type()),
		attribute.Int("node", int(id)),
	)
	started := time.Now()

	var outs []types.Value
	var err error
	if ordered, ok := node.(graph.Arriving); ok {
		outs, err = ordered.ExecuteOrdered(nodeCtx, rc, inputs, arrival)
	} else {
		outs, err = node.Execute(nodeCtx, rc, inputs)
	}
	span.End()

	if err != nil {
		return e.onNodeError(id, node, err, time.Since(started))
	}

	telemetry.Metrics().RecordNode(node.Type(), "ok", time.Since(started))
	e.log.Debug("node completed",
		zap.Int("node", int(id)),
		zap.String("type", node.Type()),
	)
	e.states[id] = StateCompleted
	if id == e.g.Finish() {
		e.finishRan = true
	}
	e.bindOutputs(id, node, outs)
	return nil
}

func (e *Engine) onNodeError(id graph.NodeID, node graph.Node, err error, elapsed time.Duration) error {
	if errors.Is(err, ErrStuck) {
		telemetry.Metrics().RecordNode(node.Type(), "stuck", elapsed)
		e.log.Warn("node stuck on a stalled nested run",
			zap.Int("node", int(id)),
			zap.String("type", node.Type()),
		)
		e.states[id] = StateStuck
		return nil
	}

	fe := types.AsFlowError(err)
	telemetry.Metrics().RecordNode(node.Type(), "failed", elapsed)
	e.log.Warn("node failed",
		zap.Int("node", int(id)),
		zap.String("type", node.Type()),
		zap.String("code", string(fe.Code)),
		zap.Error(fe),
	)

	// Fatal, config, and wiring failures halt no matter what is wired.
	if types.IsFatal(fe) || types.IsConfig(fe) || types.IsWiring(fe) {
		e.states[id] = StateFailed
		return fe
	}
	e.states[id] = StateFailed
	if e.routeFailure(id, fe) {
		return nil
	}
	return fe
}

// routeFailure injects the failure value into every failure input pin wired
// from the failed node. Returns false when no handler is wired.
func (e *Engine) routeFailure(id graph.NodeID, fe *types.FlowError) bool {
	handled := false
	node := e.g.Node(id)
	for pin := range node.Pins().Outputs {
		for _, w := range e.g.WiresFrom(graph.PinID{Node: id, Pin: pin}) {
			in := e.g.Node(w.To.Node).Pins().Inputs[w.To.Pin]
			if !in.IsFailure() {
				continue
			}
			e.bind(w.To, types.Failure(fe))
			handled = true
		}
	}
	return handled
}

// bindOutputs distributes a node's outputs along its wires. Placeholder
// outputs bind nothing, which is how untaken branches stay dry. Failure
// input pins only ever receive injected failures, never success values.
func (e *Engine) bindOutputs(id graph.NodeID, node graph.Node, outs []types.Value) {
	pins := node.Pins().Outputs
	for i := 0; i < len(pins) && i < len(outs); i++ {
		if outs[i].IsEmpty() {
			continue
		}
		for _, w := range e.g.WiresFrom(graph.PinID{Node: id, Pin: i}) {
			in := e.g.Node(w.To.Node).Pins().Inputs[w.To.Pin]
			if in.IsFailure() {
				continue
			}
			e.bind(w.To, outs[i])
		}
	}
}

func (e *Engine) bind(to graph.PinID, v types.Value) {
	b := &e.binds[to.Node][to.Pin]
	if b.has {
		return
	}
	*b = binding{val: v, seq: e.seq, has: true}
	e.seq++
}

func (e *Engine) gatherInputs(id graph.NodeID) ([]types.Value, []int) {
	pins := e.binds[id]
	inputs := make([]types.Value, len(pins))
	arrival := make([]int, len(pins))
	for i, b := range pins {
		if b.has {
			inputs[i] = b.val
			arrival[i] = b.seq
		} else {
			inputs[i] = types.Empty()
			arrival[i] = -1
		}
	}
	return inputs, arrival
}

func (e *Engine) captureOutputs(id graph.NodeID, inputs []types.Value) {
	pins := e.g.Node(id).Pins().Inputs
	for i, v := range inputs {
		if v.IsEmpty() {
			continue
		}
		e.outputs[pins[i].Name] = v
	}
}

// terminal classifies an empty ready set.
func (e *Engine) terminal() *Result {
	if e.g.Finish() != graph.None && !e.g.Disabled(e.g.Finish()) {
		if e.finishRan {
			return &Result{Status: StatusCompleted, Outputs: e.outputs}
		}
		return &Result{
			Status:  StatusStalled,
			Outputs: e.outputs,
			Err:     types.NewFlowError(types.ErrUnfinished, "no node can make progress and the finish node never ran"),
		}
	}
	// Without a finish node a run completes only when no waiting node is
	// still starving on a wired input. Wire cycles and dropped branches with
	// waiting consumers land here.
	for i := range e.g.Nodes() {
		if e.states[i] != StateWaiting {
			continue
		}
		for pin := range e.binds[i] {
			if _, wired := e.wiresInto[i][pin]; !wired {
				continue
			}
			if !e.binds[i][pin].has {
				return &Result{
					Status:  StatusStalled,
					Outputs: e.outputs,
					Err:     types.NewFlowError(types.ErrUnfinished, "a node starved waiting on inputs that never arrived"),
				}
			}
		}
	}
	return &Result{Status: StatusCompleted, Outputs: e.outputs}
}

type readyView struct {
	e  *Engine
	id graph.NodeID
}

func (e *Engine) view(id graph.NodeID) readyView { return readyView{e: e, id: id} }

func (v readyView) InputCount() int { return len(v.e.binds[v.id]) }

func (v readyView) Connected(pin int) bool {
	_, ok := v.e.wiresInto[v.id][pin]
	return ok
}

func (v readyView) Bound(pin int) bool { return v.e.binds[v.id][pin].has }
