package tools

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/types"
)

// Reserved tool names for cross-run chaining.
const (
	// ChainToolName queues the next workflow of a chain.
	ChainToolName = "chainer"
	// ChainBreakerName clears a pending chain entry.
	ChainBreakerName = "__break__"
)

// ChainRecorder receives chain requests made during a run. Only the root
// graph of a run carries a recorder; nested subgraph runs see none, so
// chaining from inside a subgraph fails as a tool error.
type ChainRecorder interface {
	// RequestNext queues the named workflow to run after this one, with an
	// optional seed prompt for its first turn.
	RequestNext(workflow, seed string) error
	// Break clears any pending chain entry.
	Break()
}

// WorkflowLister exposes the chainable workflow names to the chain tool.
type WorkflowLister interface {
	// Has reports whether the named workflow exists and accepts chaining.
	Has(name string) bool
	// Names returns the chainable workflow names.
	Names() []string
}

type recorderKey struct{}

// WithRecorder attaches a chain recorder to the context. The engine does
// this for the root graph only.
func WithRecorder(ctx context.Context, r ChainRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the chain recorder attached to the context, if any.
func RecorderFrom(ctx context.Context) (ChainRecorder, bool) {
	r, ok := ctx.Value(recorderKey{}).(ChainRecorder)
	return r, ok && r != nil
}

// ChainTool lets the model hand off to another workflow once the current
// run completes.
type ChainTool struct {
	workflows WorkflowLister
}

// NewChainTool builds the chain tool over the given workflow catalog. A nil
// catalog accepts any workflow name.
func NewChainTool(workflows WorkflowLister) *ChainTool {
	return &ChainTool{workflows: workflows}
}

func (t *ChainTool) Name() string { return ChainToolName }

func (t *ChainTool) Description() string {
	if t.workflows == nil {
		return "Queue another workflow to run after this one finishes."
	}
	return fmt.Sprintf(
		"Queue another workflow to run after this one finishes. Available workflows: %v.",
		t.workflows.Names(),
	)
}

func (t *ChainTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow": map[string]any{
				"type":        "string",
				"description": "Name of the workflow to run next.",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "Optional seed prompt passed to the next workflow.",
			},
		},
		"required": []string{"workflow"},
	}
}

func (t *ChainTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	rec, ok := RecorderFrom(ctx)
	if !ok {
		return nil, types.NewFlowError(types.ErrToolCall, "chaining is only available to the top-level workflow")
	}
	name, _ := params["workflow"].(string)
	if name == "" {
		return nil, types.NewFlowError(types.ErrValidation, "chain request missing workflow name")
	}
	if t.workflows != nil && !t.workflows.Has(name) {
		return nil, types.FlowErrorf(types.ErrValidation, "unknown workflow %q", name)
	}
	seed, _ := params["prompt"].(string)
	if err := rec.RequestNext(name, seed); err != nil {
		return nil, err
	}
	return fmt.Sprintf("queued workflow %q", name), nil
}

// ChainBreaker clears a pending chain entry, ending the chain after the
// current run.
type ChainBreaker struct{}

// NewChainBreaker builds the chain breaker tool.
func NewChainBreaker() *ChainBreaker { return &ChainBreaker{} }

func (t *ChainBreaker) Name() string { return ChainBreakerName }

func (t *ChainBreaker) Description() string {
	return "Cancel any queued follow-up workflow so the chain ends here."
}

func (t *ChainBreaker) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ChainBreaker) Execute(ctx context.Context, params map[string]any) (any, error) {
	rec, ok := RecorderFrom(ctx)
	if !ok {
		return nil, types.NewFlowError(types.ErrToolCall, "chaining is only available to the top-level workflow")
	}
	rec.Break()
	return "chain cleared", nil
}
