package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/types"
)

type stubProvider struct{ name string }

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Message: types.NewAssistantMessage("ok from " + p.name)}, nil
}

func TestRegistryResolveQualified(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(&stubProvider{name: "acme"})

	p, err := reg.Resolve("acme/fast-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", p.Name())
}

func TestRegistryFallback(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Resolve("unknown-model")
	assert.Error(t, err)
	assert.Equal(t, types.ErrProvider, types.CodeOf(err))

	reg.SetFallback(&stubProvider{name: "default"})
	p, err := reg.Resolve("unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name())
}

func TestNilRegistry(t *testing.T) {
	t.Parallel()

	var reg *Registry
	_, err := reg.Resolve("any")
	assert.Error(t, err)
}

func TestStripProviderPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "fast-1", StripProviderPrefix("acme/fast-1"))
	assert.Equal(t, "plain", StripProviderPrefix("plain"))
}
