package graph

import (
	"go.uber.org/zap"

	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/tools"
	"github.com/loomworks/loom/types"
)

// OutputSink receives named artifacts from output nodes. Artifacts survive
// halted and stalled runs.
type OutputSink interface {
	Emit(label string, v types.Value)
}

// PreviewSink receives preview taps for display or capture.
type PreviewSink interface {
	Preview(node NodeID, title string, v types.Value)
}

// OutputFunc adapts a function to OutputSink.
type OutputFunc func(label string, v types.Value)

func (f OutputFunc) Emit(label string, v types.Value) { f(label, v) }

// PreviewFunc adapts a function to PreviewSink.
type PreviewFunc func(node NodeID, title string, v types.Value)

func (f PreviewFunc) Preview(node NodeID, title string, v types.Value) { f(node, title, v) }

// RunContext carries the collaborators and seed parameters of one run. It
// is shared by every node execution of that run and must be treated as
// read-only by nodes.
type RunContext struct {
	Logger    *zap.Logger
	Providers *llm.Registry
	Tools     *tools.Registry

	Outputs  OutputSink
	Previews PreviewSink

	// Chain records cross-run chain requests. Nil for every nested
	// subgraph run, so chaining below the root fails as a tool error.
	Chain tools.ChainRecorder

	// Seed parameters, exposed to the workflow through start node pins.
	Prompt      string
	Model       string
	Temperature float64
	History     *types.Conversation

	// Tokens counts tokens for history budget nodes. Optional.
	Tokens types.Tokenizer

	// Concurrency caps parallel subgraph iterations. Zero means unbounded.
	Concurrency int

	// Depth is the subgraph nesting level, zero at the root.
	Depth int
}

// Log returns the run logger, never nil.
func (rc *RunContext) Log() *zap.Logger {
	if rc == nil || rc.Logger == nil {
		return zap.NewNop()
	}
	return rc.Logger
}

// Child derives the context for a nested subgraph run: same collaborators,
// one level deeper, and no chain recorder.
func (rc *RunContext) Child() *RunContext {
	child := *rc
	child.Chain = nil
	child.Depth = rc.Depth + 1
	return &child
}

// EmitOutput forwards an artifact to the output sink, if any.
func (rc *RunContext) EmitOutput(label string, v types.Value) {
	if rc != nil && rc.Outputs != nil {
		rc.Outputs.Emit(label, v)
	}
}

// EmitPreview forwards a tap to the preview sink, if any.
func (rc *RunContext) EmitPreview(node NodeID, title string, v types.Value) {
	if rc != nil && rc.Previews != nil {
		rc.Previews.Preview(node, title, v)
	}
}
