package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// innerEcho wires start.prompt straight into finish.result.
func innerEcho(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("echo")
	start, err := newStart(def(nil))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})
	return g
}

func TestSubgraphPinsMirrorInner(t *testing.T) {
	t.Parallel()

	simple := NewSubgraphNode(innerEcho(t), false)
	pins := simple.Pins()
	require.Len(t, pins.Inputs, 1)
	assert.Equal(t, "prompt", pins.Inputs[0].Name)
	assert.Equal(t, []types.Kind{types.KindText}, pins.Inputs[0].Accepts)
	require.Len(t, pins.Outputs, 2)
	assert.Equal(t, "result", pins.Outputs[0].Name)
	assert.Equal(t, "failure", pins.Outputs[1].Name)
	assert.Equal(t, types.KindFailure, pins.Outputs[1].Kind)

	iter := NewSubgraphNode(innerEcho(t), true)
	pins = iter.Pins()
	assert.Equal(t, []types.Kind{types.KindTextList, types.KindText}, pins.Inputs[0].Accepts)
}

func TestSubgraphSimpleRun(t *testing.T) {
	t.Parallel()

	n := NewSubgraphNode(innerEcho(t), false)
	outs := exec(t, n, nil, types.Text("through"))

	require.Len(t, outs, 2)
	got, _ := outs[0].AsText()
	assert.Equal(t, "through", got)
	assert.True(t, outs[1].IsEmpty())
}

func TestSubgraphStalledInnerIsStuck(t *testing.T) {
	t.Parallel()

	// A match with no default drops non-matching input, so the finish node
	// starves and the nested run stalls.
	g := graph.New("starved")
	start, err := newStart(def(nil))
	require.NoError(t, err)
	match, err := newMatch(def(map[string]any{"cases": []any{"expected"}}))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	mid := g.Add(match)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: mid, Pin: 0})
	g.MustConnect(graph.PinID{Node: mid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, false)
	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Text("surprise")})
	assert.True(t, errors.Is(execErr, engine.ErrStuck))
}

func TestSubgraphNestedPanicUnwrapped(t *testing.T) {
	t.Parallel()

	g := graph.New("doomed")
	start, err := newStart(def(nil))
	require.NoError(t, err)
	boom, err := newPanic(def(map[string]any{"message": "inner panic"}))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	bid := g.Add(boom)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: bid, Pin: 0})
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, false)
	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Text("go")})
	require.Error(t, execErr)
	assert.True(t, types.IsFatal(execErr))
	assert.NotEqual(t, types.ErrSubgraph, types.CodeOf(execErr))
}

func TestSubgraphRecoverableFailureWrapped(t *testing.T) {
	t.Parallel()

	g := graph.New("parsing")
	start, err := newStart(def(nil))
	require.NoError(t, err)
	parse, err := newParseJson(def(nil))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	pid := g.Add(parse)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: pid, Pin: 0})
	g.MustConnect(graph.PinID{Node: pid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, false)
	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Text("not json")})
	assert.Equal(t, types.ErrSubgraph, types.CodeOf(execErr))
}

func TestIterativeMapsOverList(t *testing.T) {
	t.Parallel()

	n := NewSubgraphNode(innerEcho(t), true)
	outs := exec(t, n, nil, types.TextList([]string{"a", "b", "c"}))

	require.Len(t, outs, 2)
	assert.Equal(t, types.KindTextList, outs[0].Kind())
	length, _ := outs[0].ListLen()
	assert.Equal(t, 3, length)
	first, _ := outs[0].ElementAt(0).AsText()
	assert.Equal(t, "a", first)
}

func TestIterativeScalarDegradesToSimple(t *testing.T) {
	t.Parallel()

	n := NewSubgraphNode(innerEcho(t), true)
	outs := exec(t, n, nil, types.Text("solo"))

	got, _ := outs[0].AsText()
	assert.Equal(t, "solo", got)
	assert.Equal(t, types.KindText, outs[0].Kind())
}

func TestIterativeMismatchedLengthsFailFast(t *testing.T) {
	t.Parallel()

	g := graph.New("pair")
	start, err := newStart(def(map[string]any{"outputs": []any{"prompt", "temperature"}}))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, true)
	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{
		types.TextList([]string{"a", "b"}),
		types.NumberList([]float64{1, 2, 3}),
	})
	assert.Equal(t, types.ErrConfig, types.CodeOf(execErr))
}

func TestIterativeBroadcastsScalars(t *testing.T) {
	t.Parallel()

	// The scalar temperature rides along unchanged while the text list
	// drives three iterations.
	g := graph.New("broadcast")
	start, err := newStart(def(map[string]any{"outputs": []any{"prompt", "temperature"}}))
	require.NoError(t, err)
	gather, err := newGatherJson(def(map[string]any{"keys": []any{"prompt", "temperature"}}))
	require.NoError(t, err)
	finish, err := newFinish(def(nil))
	require.NoError(t, err)
	sid := g.Add(start)
	gid := g.Add(gather)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: gid, Pin: 0})
	g.MustConnect(graph.PinID{Node: sid, Pin: 1}, graph.PinID{Node: gid, Pin: 1})
	g.MustConnect(graph.PinID{Node: gid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, true)
	rc := &graph.RunContext{Concurrency: 2}
	outs, err := n.Execute(context.Background(), rc, []types.Value{
		types.TextList([]string{"x", "y", "z"}),
		types.Number(0.7),
	})
	require.NoError(t, err)

	length, _ := outs[0].ListLen()
	require.Equal(t, 3, length)
	doc, ok := outs[0].ElementAt(1).AsJson()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"prompt": "y", "temperature": 0.7}, doc)
}

func TestIterativeEmptyColumnBindsTypedEmptyList(t *testing.T) {
	t.Parallel()

	// The "dropped" finish pin declares its type but never receives a
	// value, so every iteration contributes a placeholder to that column.
	g := graph.New("sieve")
	start, err := newStart(def(nil))
	require.NoError(t, err)
	finish, err := newFinish(def(map[string]any{"inputs": []any{
		"kept",
		map[string]any{"name": "dropped", "kind": "text"},
	}}))
	require.NoError(t, err)
	sid := g.Add(start)
	fid := g.Add(finish)
	g.MarkStart(sid)
	g.MarkFinish(fid)
	g.MustConnect(graph.PinID{Node: sid, Pin: 0}, graph.PinID{Node: fid, Pin: 0})

	n := NewSubgraphNode(g, true)
	outs := exec(t, n, nil, types.TextList([]string{"a", "b"}))

	length, _ := outs[0].ListLen()
	assert.Equal(t, 2, length)

	// The empty column still binds a zero-length list of the declared
	// element type instead of a placeholder that starves consumers.
	require.Equal(t, types.KindTextList, outs[1].Kind())
	length, ok := outs[1].ListLen()
	require.True(t, ok)
	assert.Equal(t, 0, length)
}

func TestSubgraphFromDefinition(t *testing.T) {
	t.Parallel()

	inner := &graph.Definition{
		Name: "inner",
		Nodes: []graph.NodeDefinition{
			{Type: "start"},
			{Type: "finish"},
		},
		Wires: []graph.WireDefinition{
			{FromNode: 0, FromPin: 0, ToNode: 1, ToPin: 0},
		},
	}

	n, err := newSubgraph(&graph.NodeDefinition{Subgraph: inner, Flavor: FlavorIterative})
	require.NoError(t, err)
	assert.Equal(t, "subgraph", n.Type())

	_, err = newSubgraph(&graph.NodeDefinition{Subgraph: inner, Flavor: "recursive"})
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = newSubgraph(&graph.NodeDefinition{})
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}
