// Package llm defines the model provider boundary used by the chat nodes.
// The engine only ever sees this interface; concrete providers (OpenAI,
// Anthropic, local runtimes, ...) live outside the module and register
// themselves at startup.
package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/loomworks/loom/types"
)

// ChatRequest is a single completion request.
type ChatRequest struct {
	Model       string
	Messages    []types.Message
	Temperature float64
	MaxTokens   int
	// Tools the model may call, expressed as JSON schema documents keyed
	// by tool name. Empty means no tool calling.
	Tools map[string]any
	// ResponseSchema, when set, constrains the response to a JSON document
	// matching the schema. Providers without native support may ignore it;
	// the StructuredOutput node validates regardless.
	ResponseSchema any
}

// ChatResponse is a completed model turn.
type ChatResponse struct {
	Message      types.Message
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Provider is the minimal surface a model backend must implement.
type Provider interface {
	// Completion performs a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// Name returns the provider's unique identifier.
	Name() string
}

// Registry resolves model identifiers to providers. A nil or empty registry
// makes every chat node fail with a provider error, which keeps pure
// data-plumbing workflows runnable without any model configured.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// SetFallback sets the provider used when no model-specific match exists.
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Resolve returns the provider responsible for the given model identifier.
// Model ids may be qualified as "provider/model"; unqualified ids fall
// through to the fallback provider.
func (r *Registry) Resolve(model string) (Provider, error) {
	if r == nil {
		return nil, types.NewFlowError(types.ErrProvider, "no provider registry configured")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, p := range r.providers {
		if len(model) > len(name) && model[:len(name)] == name && model[len(name)] == '/' {
			return p, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, types.FlowErrorf(types.ErrProvider, "no provider for model %q", model)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// StripProviderPrefix removes a "provider/" qualifier from a model id.
func StripProviderPrefix(model string) string {
	for i := 0; i < len(model); i++ {
		if model[i] == '/' {
			return model[i+1:]
		}
	}
	return model
}
