package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

func TestParseJson(t *testing.T) {
	t.Parallel()

	n, err := newParseJson(def(nil))
	require.NoError(t, err)

	outs := exec(t, n, nil, types.Text(`{"a": 1}`))
	doc, ok := outs[0].AsJson()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1.0}, doc)

	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Text("not json")})
	assert.Equal(t, types.ErrConversion, types.CodeOf(execErr))
}

func TestGatherJson(t *testing.T) {
	t.Parallel()

	n, err := newGatherJson(def(map[string]any{"keys": []any{"name", "count"}}))
	require.NoError(t, err)
	require.Len(t, n.Pins().Inputs, 2)

	outs := exec(t, n, nil, types.Text("ada"), types.Integer(3))
	doc, _ := outs[0].AsJson()
	assert.Equal(t, map[string]any{"name": "ada", "count": 3.0}, doc)

	// Unbound inputs are omitted rather than nulled.
	outs = exec(t, n, nil, types.Text("ada"), types.Empty())
	doc, _ = outs[0].AsJson()
	assert.Equal(t, map[string]any{"name": "ada"}, doc)

	_, err = newGatherJson(def(nil))
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestValidateJsonNode(t *testing.T) {
	t.Parallel()

	n, err := newValidateJson(def(map[string]any{"schema": map[string]any{
		"type":     "object",
		"required": []any{"id"},
	}}))
	require.NoError(t, err)

	outs := exec(t, n, nil, types.Json(map[string]any{"id": "x"}))
	doc, _ := outs[0].AsJson()
	assert.Equal(t, map[string]any{"id": "x"}, doc)

	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Json(map[string]any{})})
	assert.Equal(t, types.ErrValidation, types.CodeOf(execErr))

	_, err = newValidateJson(def(nil))
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestTransformJsonPath(t *testing.T) {
	t.Parallel()

	n, err := newTransformJson(def(map[string]any{"path": "items.1.name"}))
	require.NoError(t, err)

	outs := exec(t, n, nil, types.Json(map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}))
	doc, _ := outs[0].AsJson()
	assert.Equal(t, "second", doc)

	_, execErr := n.Execute(context.Background(), &graph.RunContext{}, []types.Value{types.Json(map[string]any{})})
	assert.Equal(t, types.ErrConversion, types.CodeOf(execErr))
}

func TestTransformJsonSetAndDelete(t *testing.T) {
	t.Parallel()

	n, err := newTransformJson(def(map[string]any{
		"set":    map[string]any{"meta.source": "loom"},
		"delete": []any{"secret"},
	}))
	require.NoError(t, err)

	outs := exec(t, n, nil, types.Json(map[string]any{"secret": "x", "kept": true}))
	doc, _ := outs[0].AsJson()
	assert.Equal(t, map[string]any{
		"kept": true,
		"meta": map[string]any{"source": "loom"},
	}, doc)

	_, err = newTransformJson(def(nil))
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestUnwrapJsonDynamicKinds(t *testing.T) {
	t.Parallel()

	n, err := newUnwrapJson(def(nil))
	require.NoError(t, err)
	assert.Equal(t, types.KindPlaceholder, n.Pins().Outputs[0].Kind)

	outs := exec(t, n, nil, types.Json("plain"))
	assert.Equal(t, types.KindText, outs[0].Kind())

	outs = exec(t, n, nil, types.Json(2.5))
	assert.Equal(t, types.KindNumber, outs[0].Kind())

	outs = exec(t, n, nil, types.Json([]any{"a", "b"}))
	assert.Equal(t, types.KindTextList, outs[0].Kind())

	outs = exec(t, n, nil, types.Json([]any{1.0, 2.0}))
	assert.Equal(t, types.KindNumberList, outs[0].Kind())

	outs = exec(t, n, nil, types.Json(map[string]any{"k": "v"}))
	assert.Equal(t, types.KindJson, outs[0].Kind())

	// JSON null unwraps to a placeholder and stays dry downstream.
	outs = exec(t, n, nil, types.Json(nil))
	assert.True(t, outs[0].IsEmpty())
}
