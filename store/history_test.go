package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/types"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAndRecent(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	ctx := context.Background()

	outputs := map[string]types.Value{"result": types.Text("done")}
	require.NoError(t, h.Record(ctx, "s1", "echo", "completed", "hi", outputs, nil, 120*time.Millisecond))
	require.NoError(t, h.Record(ctx, "s1", "echo", "halted", "boom", nil, errors.New("provider down"), 5*time.Millisecond))
	require.NoError(t, h.Record(ctx, "s1", "other", "completed", "", nil, nil, time.Millisecond))

	recs, err := h.Recent(ctx, "echo", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "halted", recs[0].Status)
	assert.Equal(t, "provider down", recs[0].Error)
	assert.Equal(t, "completed", recs[1].Status)
	assert.JSONEq(t, `{"result": "done"}`, recs[1].Outputs)
	assert.Equal(t, int64(120), recs[1].DurationMs)

	all, err := h.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := h.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "other", limited[0].Workflow)
}
