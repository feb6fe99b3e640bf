package types

import "sort"

// AgentSpec is an immutable handle describing how chat nodes should talk to
// a model provider: which model, sampling temperature, system prompt, and
// which tools the agent may call. Produced by the Agent node and carried on
// Agent-kinded wires.
type AgentSpec struct {
	Model        string        `json:"model"`
	Temperature  float64       `json:"temperature"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Tools        *ToolSelector `json:"tools,omitempty"`
	MaxTurns     int           `json:"max_turns,omitempty"`
}

// ToolSelector is a named subset of the tool registry, carried as a value so
// workflows can route tool availability like any other data.
type ToolSelector struct {
	names map[string]struct{}
}

// NewToolSelector builds a selector over the given tool names.
func NewToolSelector(names ...string) *ToolSelector {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &ToolSelector{names: set}
}

// Has reports whether the named tool is selected.
func (s *ToolSelector) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Names returns the selected tool names in sorted order.
func (s *ToolSelector) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of selected tools.
func (s *ToolSelector) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
