// Package tools holds the tool registry exposed to tool-calling chat nodes.
// A tool is a named function the model may invoke with JSON arguments; the
// registry resolves names to implementations and renders the JSON schema
// catalog sent to providers.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/loomworks/loom/types"
)

// Tool is a callable exposed to the model.
type Tool interface {
	// Name returns the unique tool name.
	Name() string
	// Description returns the human/model readable description.
	Description() string
	// Schema returns the JSON schema for the tool parameters.
	Schema() map[string]any
	// Execute runs the tool with decoded JSON parameters.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, params map[string]any) (any, error)
}

// NewFunc builds a Tool from a function.
func NewFunc(name, description string, schema map[string]any, fn func(ctx context.Context, params map[string]any) (any, error)) *Func {
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

func (f *Func) Name() string           { return f.name }
func (f *Func) Description() string    { return f.description }
func (f *Func) Schema() map[string]any { return f.schema }

func (f *Func) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f.fn(ctx, params)
}

// Registry maps tool names to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute resolves and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, types.FlowErrorf(types.ErrToolCall, "tool %q not registered", name)
	}
	out, err := t.Execute(ctx, params)
	if err != nil {
		return nil, types.FlowErrorf(types.ErrToolCall, "tool %q failed", name).WithCause(err)
	}
	return out, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Schemas renders the provider-facing tool catalog for the given selector.
// A nil selector selects nothing.
func (r *Registry) Schemas(sel *types.ToolSelector) map[string]any {
	if r == nil || sel.Len() == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, sel.Len())
	for _, name := range sel.Names() {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		out[name] = map[string]any{
			"description": t.Description(),
			"parameters":  t.Schema(),
		}
	}
	return out
}
