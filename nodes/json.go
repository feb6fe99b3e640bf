package nodes

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// valueToAny converts a value to its decoded JSON form.
func valueToAny(v types.Value) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ParseJson decodes a text value into a Json document.
type ParseJson struct {
	base
}

func newParseJson(def *graph.NodeDefinition) (graph.Node, error) {
	return &ParseJson{base: baseOf(def)}, nil
}

func (n *ParseJson) Type() string { return "parse_json" }

func (n *ParseJson) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "text", Accepts: []types.Kind{types.KindText}}},
		Outputs: []graph.OutPin{{Name: "json", Kind: types.KindJson}},
	}
}

func (n *ParseJson) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *ParseJson) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "text")
	if err != nil {
		return nil, err
	}
	text, ok := in.AsText()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "parse_json needs a text input")
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, types.NewFlowError(types.ErrConversion, "input is not valid JSON").WithCause(err)
	}
	return []types.Value{types.Json(doc)}, nil
}

// GatherJson assembles named inputs into one Json object.
type GatherJson struct {
	base
	keys []string
}

func newGatherJson(def *graph.NodeDefinition) (graph.Node, error) {
	keys := cfgStrings(def.Config, "keys")
	if len(keys) == 0 {
		return nil, types.NewFlowError(types.ErrConfig, "gather_json needs at least one key")
	}
	return &GatherJson{base: baseOf(def), keys: keys}, nil
}

func (n *GatherJson) Type() string { return "gather_json" }

func (n *GatherJson) Pins() graph.PinSet {
	ins := make([]graph.InPin, len(n.keys))
	for i, k := range n.keys {
		ins[i] = graph.InPin{Name: k}
	}
	return graph.PinSet{
		Inputs:  ins,
		Outputs: []graph.OutPin{{Name: "json", Kind: types.KindJson}},
	}
}

func (n *GatherJson) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *GatherJson) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	obj := make(map[string]any, len(n.keys))
	for i, k := range n.keys {
		if inputs[i].IsEmpty() {
			continue
		}
		obj[k] = valueToAny(inputs[i])
	}
	return []types.Value{types.Json(obj)}, nil
}

// ValidateJson checks a Json document against a JSON schema and passes it
// through unchanged.
type ValidateJson struct {
	base
	schema *types.JSONSchema
}

func newValidateJson(def *graph.NodeDefinition) (graph.Node, error) {
	schema, err := types.SchemaFromAny(cfgMap(def.Config, "schema"))
	if err != nil {
		return nil, types.NewFlowError(types.ErrConfig, "invalid schema").WithCause(err)
	}
	if schema == nil {
		return nil, types.NewFlowError(types.ErrConfig, "validate_json needs a schema")
	}
	return &ValidateJson{base: baseOf(def), schema: schema}, nil
}

func (n *ValidateJson) Type() string { return "validate_json" }

func (n *ValidateJson) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "json", Accepts: []types.Kind{types.KindJson}}},
		Outputs: []graph.OutPin{{Name: "json", Kind: types.KindJson}},
	}
}

func (n *ValidateJson) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *ValidateJson) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "json")
	if err != nil {
		return nil, err
	}
	doc, ok := in.AsJson()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "validate_json needs a Json input")
	}
	if err := n.schema.Validate(doc); err != nil {
		return nil, err
	}
	return []types.Value{in}, nil
}

// TransformJson projects a Json document: apply sets, deletes, then an
// optional path extraction.
type TransformJson struct {
	base
	path    string
	sets    map[string]any
	deletes []string
}

func newTransformJson(def *graph.NodeDefinition) (graph.Node, error) {
	n := &TransformJson{
		base:    baseOf(def),
		path:    cfgString(def.Config, "path", ""),
		sets:    cfgMap(def.Config, "set"),
		deletes: cfgStrings(def.Config, "delete"),
	}
	if n.path == "" && len(n.sets) == 0 && len(n.deletes) == 0 {
		return nil, types.NewFlowError(types.ErrConfig, "transform_json needs a path, set, or delete")
	}
	return n, nil
}

func (n *TransformJson) Type() string { return "transform_json" }

func (n *TransformJson) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "json", Accepts: []types.Kind{types.KindJson}}},
		Outputs: []graph.OutPin{{Name: "json", Kind: types.KindJson}},
	}
}

func (n *TransformJson) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *TransformJson) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "json")
	if err != nil {
		return nil, err
	}
	doc, ok := in.AsJson()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "transform_json needs a Json input")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, types.NewFlowError(types.ErrConversion, "re-encode Json input").WithCause(err)
	}
	for path, value := range n.sets {
		data, err = sjson.SetBytes(data, path, value)
		if err != nil {
			return nil, types.FlowErrorf(types.ErrConversion, "set %q", path).WithCause(err)
		}
	}
	for _, path := range n.deletes {
		data, err = sjson.DeleteBytes(data, path)
		if err != nil {
			return nil, types.FlowErrorf(types.ErrConversion, "delete %q", path).WithCause(err)
		}
	}
	var out any
	if n.path != "" {
		res := gjson.GetBytes(data, n.path)
		if !res.Exists() {
			return nil, types.FlowErrorf(types.ErrConversion, "path %q not found", n.path)
		}
		out = res.Value()
	} else if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewFlowError(types.ErrConversion, "decode transformed document").WithCause(err)
	}
	return []types.Value{types.Json(out)}, nil
}

// UnwrapJson converts a Json document into the closest concrete kind. Its
// output pin is dynamic: the kind is only known at runtime.
type UnwrapJson struct {
	base
}

func newUnwrapJson(def *graph.NodeDefinition) (graph.Node, error) {
	return &UnwrapJson{base: baseOf(def)}, nil
}

func (n *UnwrapJson) Type() string { return "unwrap_json" }

func (n *UnwrapJson) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "json", Accepts: []types.Kind{types.KindJson}}},
		Outputs: []graph.OutPin{{Name: "out", Kind: types.KindPlaceholder}},
	}
}

func (n *UnwrapJson) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *UnwrapJson) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "json")
	if err != nil {
		return nil, err
	}
	doc, ok := in.AsJson()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "unwrap_json needs a Json input")
	}
	return []types.Value{unwrap(doc)}, nil
}

func unwrap(doc any) types.Value {
	switch v := doc.(type) {
	case string:
		return types.Text(v)
	case float64:
		return types.Number(v)
	case bool:
		if v {
			return types.Text("true")
		}
		return types.Text("false")
	case []any:
		if texts, ok := allStrings(v); ok {
			return types.TextList(texts)
		}
		if nums, ok := allNumbers(v); ok {
			return types.NumberList(nums)
		}
		return types.Json(v)
	case nil:
		return types.Empty()
	default:
		return types.Json(doc)
	}
}

func allStrings(items []any) ([]string, bool) {
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, len(items) > 0
}

func allNumbers(items []any) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, len(items) > 0
}
