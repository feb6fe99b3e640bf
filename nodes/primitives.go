package nodes

import (
	"bytes"
	"context"
	"text/template"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// Text is a constant text source.
type Text struct {
	base
	text string
}

func newText(def *graph.NodeDefinition) (graph.Node, error) {
	return &Text{base: baseOf(def), text: cfgString(def.Config, "text", "")}, nil
}

func (n *Text) Type() string { return "text" }

func (n *Text) Pins() graph.PinSet {
	return graph.PinSet{Outputs: []graph.OutPin{{Name: "out", Kind: types.KindText}}}
}

func (n *Text) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Text) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	return []types.Value{types.Text(n.text)}, nil
}

// Number is a constant numeric source, integer or floating point.
type Number struct {
	base
	value   float64
	integer bool
}

func newNumber(def *graph.NodeDefinition) (graph.Node, error) {
	return &Number{
		base:    baseOf(def),
		value:   cfgFloat(def.Config, "value", 0),
		integer: cfgBool(def.Config, "integer", false),
	}, nil
}

func (n *Number) Type() string { return "number" }

func (n *Number) Pins() graph.PinSet {
	kind := types.KindNumber
	if n.integer {
		kind = types.KindInteger
	}
	return graph.PinSet{Outputs: []graph.OutPin{{Name: "out", Kind: kind}}}
}

func (n *Number) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Number) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	if n.integer {
		return []types.Value{types.Integer(int64(n.value))}, nil
	}
	return []types.Value{types.Number(n.value)}, nil
}

// Comment is an annotation with no pins. It executes once as a no-op.
type Comment struct {
	base
	text string
}

func newComment(def *graph.NodeDefinition) (graph.Node, error) {
	return &Comment{base: baseOf(def), text: cfgString(def.Config, "text", "")}, nil
}

func (n *Comment) Type() string { return "comment" }

func (n *Comment) Pins() graph.PinSet { return graph.PinSet{} }

func (n *Comment) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Comment) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	return nil, nil
}

// Preview taps a value for display. It runs before any other ready node so
// taps fire as soon as their input arrives.
type Preview struct {
	base
}

func newPreview(def *graph.NodeDefinition) (graph.Node, error) {
	return &Preview{base: baseOf(def)}, nil
}

func (n *Preview) Type() string { return "preview" }

func (n *Preview) Priority() int { return graph.PriorityPreview }

func (n *Preview) Pins() graph.PinSet {
	return graph.PinSet{Inputs: []graph.InPin{{Name: "in"}}}
}

func (n *Preview) Ready(v graph.ReadyView) bool {
	return v.Connected(0) && v.Bound(0)
}

func (n *Preview) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	rc.EmitPreview(graph.NodeIDFromContext(ctx), graph.TitleOf(n), inputs[0])
	return nil, nil
}

// Output emits a named artifact. Artifacts survive halted and stalled runs.
type Output struct {
	base
	label string
}

func newOutput(def *graph.NodeDefinition) (graph.Node, error) {
	label := cfgString(def.Config, "label", "")
	if label == "" {
		return nil, types.NewFlowError(types.ErrConfig, "output node requires a label")
	}
	return &Output{base: baseOf(def), label: label}, nil
}

func (n *Output) Type() string { return "output" }

func (n *Output) Pins() graph.PinSet {
	return graph.PinSet{Inputs: []graph.InPin{{Name: "in"}}}
}

func (n *Output) Ready(v graph.ReadyView) bool {
	return v.Connected(0) && v.Bound(0)
}

func (n *Output) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	rc.EmitOutput(n.label, inputs[0])
	return nil, nil
}

// Panic halts the run with a fatal failure when a non-empty value arrives
// on its input. Empty text and placeholders pass through without effect.
// Fatal failures are never absorbed by wired handlers.
type Panic struct {
	base
	message string
}

func newPanic(def *graph.NodeDefinition) (graph.Node, error) {
	return &Panic{base: baseOf(def), message: cfgString(def.Config, "message", "panic")}, nil
}

func (n *Panic) Type() string { return "panic" }

func (n *Panic) Priority() int { return graph.PriorityPanic }

func (n *Panic) Pins() graph.PinSet {
	return graph.PinSet{Inputs: []graph.InPin{{Name: "in"}}}
}

func (n *Panic) Ready(v graph.ReadyView) bool {
	return v.Connected(0) && v.Bound(0)
}

func (n *Panic) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	if inputs[0].IsEmpty() {
		return nil, nil
	}
	if text, ok := inputs[0].AsText(); ok {
		if text == "" {
			return nil, nil
		}
		return nil, types.NewFlowError(types.ErrFatal, text)
	}
	return nil, types.NewFlowError(types.ErrFatal, n.message)
}

// Template renders a text/template with variables from its input. Json
// objects expose their fields; scalars appear as {{.value}}.
type Template struct {
	base
	tmpl *template.Template
}

func newTemplate(def *graph.NodeDefinition) (graph.Node, error) {
	text := cfgString(def.Config, "template", "")
	tmpl, err := template.New("node").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, types.NewFlowError(types.ErrConfig, "invalid template").WithCause(err)
	}
	return &Template{base: baseOf(def), tmpl: tmpl}, nil
}

func (n *Template) Type() string { return "template" }

func (n *Template) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "vars"}},
		Outputs: []graph.OutPin{{Name: "out", Kind: types.KindText}},
	}
}

func (n *Template) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Template) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	var data any
	switch {
	case inputs[0].IsEmpty():
		data = map[string]any{}
	default:
		if doc, ok := inputs[0].AsJson(); ok {
			data = doc
		} else {
			data = map[string]any{"value": valueToAny(inputs[0])}
		}
	}
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, data); err != nil {
		return nil, types.NewFlowError(types.ErrConversion, "template render failed").WithCause(err)
	}
	return []types.Value{types.Text(buf.String())}, nil
}
