// Package nodes ships the built-in node catalog and the open extension
// registry the YAML loader resolves node types through.
package nodes

import (
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// Register installs a node factory under a type name. Third-party nodes use
// this to become loadable from workflow definitions.
func Register(name string, f graph.Factory) {
	graph.RegisterType(name, f)
}

// New builds a node from its serialized definition.
func New(def *graph.NodeDefinition) (graph.Node, error) {
	return graph.NewNode(def)
}

// Types returns the registered node type names.
func Types() []string {
	return graph.RegisteredTypes()
}

func init() {
	Register("start", newStart)
	Register("finish", newFinish)

	Register("text", newText)
	Register("number", newNumber)
	Register("comment", newComment)
	Register("preview", newPreview)
	Register("output", newOutput)
	Register("panic", newPanic)
	Register("template", newTemplate)

	Register("select", newSelect)
	Register("match", newMatch)
	Register("fallback", newFallback)
	Register("demote", newDemote)

	Register("parse_json", newParseJson)
	Register("gather_json", newGatherJson)
	Register("validate_json", newValidateJson)
	Register("transform_json", newTransformJson)
	Register("unwrap_json", newUnwrapJson)

	Register("create_message", newCreateMessage)
	Register("extend_history", newExtendHistory)
	Register("mask_history", newMaskHistory)
	Register("side_chat", newSideChat)

	Register("agent", newAgent)
	Register("context", newContext)
	Register("chat", newChat)
	Register("structured_output", newStructuredOutput)
	Register("select_tools", newSelectTools)
	Register("invoke_tool", newInvokeTool)

	Register("subgraph", newSubgraph)
}

// base carries the shared definition fields of every built-in node.
type base struct {
	title string
}

func (b base) Title() string { return b.title }

func baseOf(def *graph.NodeDefinition) base {
	return base{title: def.Title}
}

// Config decode helpers. Definitions come from YAML, so numbers arrive as
// int or float64 depending on their spelling.

func cfgString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return fallback
}

func cfgBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func cfgFloat(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func cfgInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func cfgStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cfgMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// requireInput returns the bound value at the pin, or a wiring failure.
func requireInput(inputs []types.Value, pin int, what string) (types.Value, error) {
	if pin >= len(inputs) || inputs[pin].IsEmpty() {
		return types.Empty(), types.FlowErrorf(types.ErrRequired, "missing required input %q", what)
	}
	return inputs[pin], nil
}
