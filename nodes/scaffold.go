package nodes

import (
	"context"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// Start seeds a run. Its output pins are chosen per workflow and read the
// run context's seed parameters; nested runs bypass Execute entirely
// because the enclosing subgraph node seeds them directly.
type Start struct {
	base
	outputs []string
}

var startKinds = map[string]types.Kind{
	"prompt":      types.KindText,
	"model":       types.KindModel,
	"temperature": types.KindNumber,
	"chat":        types.KindChat,
}

func newStart(def *graph.NodeDefinition) (graph.Node, error) {
	outputs := cfgStrings(def.Config, "outputs")
	if len(outputs) == 0 {
		outputs = []string{"prompt"}
	}
	for _, name := range outputs {
		if _, ok := startKinds[name]; !ok {
			return nil, types.FlowErrorf(types.ErrConfig, "start node has no output %q", name)
		}
	}
	return &Start{base: baseOf(def), outputs: outputs}, nil
}

func (n *Start) Type() string { return "start" }

func (n *Start) Pins() graph.PinSet {
	outs := make([]graph.OutPin, len(n.outputs))
	for i, name := range n.outputs {
		outs[i] = graph.OutPin{Name: name, Kind: startKinds[name]}
	}
	return graph.PinSet{Outputs: outs}
}

func (n *Start) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Start) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	outs := make([]types.Value, len(n.outputs))
	for i, name := range n.outputs {
		switch name {
		case "prompt":
			if rc.Prompt != "" {
				outs[i] = types.Text(rc.Prompt)
			} else {
				outs[i] = types.Empty()
			}
		case "model":
			outs[i] = types.Model(rc.Model)
		case "temperature":
			outs[i] = types.Number(rc.Temperature)
		case "chat":
			if rc.History != nil {
				outs[i] = types.Chat(rc.History)
			} else {
				outs[i] = types.Chat(types.EmptyConversation())
			}
		}
	}
	return outs, nil
}

// Finish captures the run outputs: whatever is bound to its input pins when
// it executes becomes the run result.
type Finish struct {
	base
	inputs []graph.InPin
}

func newFinish(def *graph.NodeDefinition) (graph.Node, error) {
	var pins []graph.InPin
	raw, ok := def.Config["inputs"].([]any)
	if !ok {
		pins = []graph.InPin{{Name: "result"}}
	}
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			pins = append(pins, graph.InPin{Name: v})
		case map[string]any:
			pin := graph.InPin{Name: cfgString(v, "name", "result")}
			if kindName := cfgString(v, "kind", ""); kindName != "" {
				kind, ok := types.KindByName(kindName)
				if !ok {
					return nil, types.FlowErrorf(types.ErrConfig, "finish node: unknown kind %q", kindName)
				}
				pin.Accepts = []types.Kind{kind}
			}
			pins = append(pins, pin)
		default:
			return nil, types.NewFlowError(types.ErrConfig, "finish node: inputs must be names or {name, kind} entries")
		}
	}
	if len(pins) == 0 {
		pins = []graph.InPin{{Name: "result"}}
	}
	return &Finish{base: baseOf(def), inputs: pins}, nil
}

func (n *Finish) Type() string { return "finish" }

func (n *Finish) Pins() graph.PinSet { return graph.PinSet{Inputs: n.inputs} }

func (n *Finish) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Finish) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	return nil, nil
}
