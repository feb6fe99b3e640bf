package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/types"
)

func echoTool() Tool {
	return NewFunc("echo", "echoes its input",
		map[string]any{"type": "object"},
		func(ctx context.Context, params map[string]any) (any, error) {
			return params["text"], nil
		})
}

func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(echoTool())

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = reg.Execute(context.Background(), "missing", nil)
	assert.Equal(t, types.ErrToolCall, types.CodeOf(err))
}

func TestRegistryExecuteWrapsFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register(NewFunc("bad", "", nil,
		func(ctx context.Context, params map[string]any) (any, error) {
			return nil, boom
		}))

	_, err := reg.Execute(context.Background(), "bad", nil)
	assert.Equal(t, types.ErrToolCall, types.CodeOf(err))
	assert.ErrorIs(t, err, boom)
}

func TestRegistrySchemas(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(echoTool())
	reg.Register(NewChainBreaker())

	schemas := reg.Schemas(types.NewToolSelector("echo", "not-there"))
	require.Len(t, schemas, 1)
	assert.Contains(t, schemas, "echo")

	assert.Nil(t, reg.Schemas(nil))
	assert.Equal(t, []string{"__break__", "echo"}, reg.Names())
}

type stubRecorder struct {
	next  string
	seed  string
	broke bool
}

func (r *stubRecorder) RequestNext(workflow, seed string) error {
	r.next, r.seed = workflow, seed
	return nil
}

func (r *stubRecorder) Break() { r.broke = true }

type stubLister struct{ names []string }

func (l *stubLister) Has(name string) bool {
	for _, n := range l.names {
		if n == name {
			return true
		}
	}
	return false
}

func (l *stubLister) Names() []string { return l.names }

func TestChainToolRecords(t *testing.T) {
	t.Parallel()

	rec := &stubRecorder{}
	ctx := WithRecorder(context.Background(), rec)
	tool := NewChainTool(&stubLister{names: []string{"triage", "report"}})

	out, err := tool.Execute(ctx, map[string]any{"workflow": "report", "prompt": "summarize"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "report")
	assert.Equal(t, "report", rec.next)
	assert.Equal(t, "summarize", rec.seed)
}

func TestChainToolRejectsUnknownWorkflow(t *testing.T) {
	t.Parallel()

	ctx := WithRecorder(context.Background(), &stubRecorder{})
	tool := NewChainTool(&stubLister{names: []string{"triage"}})

	_, err := tool.Execute(ctx, map[string]any{"workflow": "nope"})
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))

	_, err = tool.Execute(ctx, map[string]any{})
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
}

func TestChainToolsNeedRecorder(t *testing.T) {
	t.Parallel()

	// No recorder on the context models a nested subgraph run.
	_, err := NewChainTool(nil).Execute(context.Background(), map[string]any{"workflow": "x"})
	assert.Equal(t, types.ErrToolCall, types.CodeOf(err))

	_, err = NewChainBreaker().Execute(context.Background(), nil)
	assert.Equal(t, types.ErrToolCall, types.CodeOf(err))
}

func TestChainBreaker(t *testing.T) {
	t.Parallel()

	rec := &stubRecorder{}
	ctx := WithRecorder(context.Background(), rec)

	_, err := NewChainBreaker().Execute(ctx, nil)
	require.NoError(t, err)
	assert.True(t, rec.broke)
}
