package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1)) // debug

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

func TestComponentNilSafe(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, Component(nil, "engine"))
}

func TestMetricsSingleton(t *testing.T) {
	t.Parallel()

	m := Metrics()
	assert.Same(t, m, Metrics())

	// Recording must not panic.
	m.RecordRun("wf", "completed", time.Millisecond)
	m.RecordNode("text", "ok", time.Millisecond)
	m.RecordChainRequest()
}

func TestTracingDisabled(t *testing.T) {
	t.Parallel()

	p, err := InitTracing(false, "loom-test")
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
