package nodes

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/tools"
	"github.com/loomworks/loom/types"
)

// scriptProvider replays canned responses and records the requests it saw.
type scriptProvider struct {
	name     string
	script   []llm.ChatResponse
	requests []*llm.ChatRequest
}

func (p *scriptProvider) Name() string {
	if p.name == "" {
		return "script"
	}
	return p.name
}

func (p *scriptProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return &llm.ChatResponse{Message: types.NewAssistantMessage("done")}, nil
	}
	resp := p.script[0]
	p.script = p.script[1:]
	return &resp, nil
}

func providerContext(p llm.Provider) *graph.RunContext {
	reg := llm.NewRegistry()
	reg.SetFallback(p)
	return &graph.RunContext{Providers: reg, Tools: tools.NewRegistry()}
}

func TestAgentNodeAssemblesSpec(t *testing.T) {
	t.Parallel()

	n, err := newAgent(def(map[string]any{
		"system_prompt": "be terse",
		"temperature":   0.2,
		"max_turns":     2,
	}))
	require.NoError(t, err)

	rc := &graph.RunContext{Model: "fallback-model", Temperature: 0.9}
	outs, err := n.Execute(context.Background(), rc, []types.Value{
		types.Model("acme/fast"),
		types.Tools(types.NewToolSelector("echo")),
	})
	require.NoError(t, err)

	spec, ok := outs[0].AsAgent()
	require.True(t, ok)
	assert.Equal(t, "acme/fast", spec.Model)
	assert.Equal(t, 0.2, spec.Temperature)
	assert.Equal(t, "be terse", spec.SystemPrompt)
	assert.True(t, spec.Tools.Has("echo"))

	// Unset fields fall back to the run seeds.
	outs, err = n.Execute(context.Background(), rc, []types.Value{types.Empty(), types.Empty()})
	require.NoError(t, err)
	spec, _ = outs[0].AsAgent()
	assert.Equal(t, "fallback-model", spec.Model)
}

func TestContextAssemblesConversation(t *testing.T) {
	t.Parallel()

	n, err := newContext(def(nil))
	require.NoError(t, err)

	agent := types.Agent(&types.AgentSpec{Model: "m", SystemPrompt: "sys"})
	history := types.Chat(types.NewConversation(types.NewUserMessage("earlier")))

	outs := exec(t, n, nil, agent, history, types.Text("now"))
	conv, ok := outs[0].AsChat()
	require.True(t, ok)
	require.Equal(t, 3, conv.Len())
	assert.Equal(t, types.RoleSystem, conv.At(0).Role)
	assert.Equal(t, "earlier", conv.At(1).Content)
	assert.Equal(t, "now", conv.At(2).Content)

	// An existing leading system message is not duplicated.
	seeded := types.Chat(types.NewConversation(types.NewSystemMessage("already")))
	outs = exec(t, n, nil, agent, seeded, types.Empty())
	conv, _ = outs[0].AsChat()
	require.Equal(t, 1, conv.Len())
	assert.Equal(t, "already", conv.At(0).Content)
}

func TestChatNodeSingleTurn(t *testing.T) {
	t.Parallel()

	p := &scriptProvider{script: []llm.ChatResponse{
		{Message: types.NewAssistantMessage("the answer")},
	}}
	rc := providerContext(p)

	n, err := newChat(def(nil))
	require.NoError(t, err)

	agent := types.Agent(&types.AgentSpec{Model: "m", Temperature: 0.5})
	conv := types.Chat(types.NewConversation(types.NewUserMessage("question")))

	outs, err := n.Execute(context.Background(), rc, []types.Value{agent, conv})
	require.NoError(t, err)

	msg, _ := outs[0].AsMessage()
	assert.Equal(t, "the answer", msg.Content)

	extended, _ := outs[1].AsChat()
	assert.Equal(t, 2, extended.Len())

	require.Len(t, p.requests, 1)
	assert.Equal(t, 0.5, p.requests[0].Temperature)
}

func TestChatNodeToolLoop(t *testing.T) {
	t.Parallel()

	call := types.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}
	p := &scriptProvider{script: []llm.ChatResponse{
		{Message: types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{call})},
		{Message: types.NewAssistantMessage("final")},
	}}
	rc := providerContext(p)
	rc.Tools.Register(tools.NewFunc("echo", "", nil,
		func(ctx context.Context, params map[string]any) (any, error) {
			return params["text"], nil
		}))

	n, err := newChat(def(nil))
	require.NoError(t, err)

	agent := types.Agent(&types.AgentSpec{Model: "m", MaxTurns: 3, Tools: types.NewToolSelector("echo")})
	conv := types.Chat(types.NewConversation(types.NewUserMessage("go")))

	outs, err := n.Execute(context.Background(), rc, []types.Value{agent, conv})
	require.NoError(t, err)

	msg, _ := outs[0].AsMessage()
	assert.Equal(t, "final", msg.Content)

	// user, assistant tool call, tool result, final assistant.
	extended, _ := outs[1].AsChat()
	assert.Equal(t, 4, extended.Len())
	assert.Equal(t, types.RoleTool, extended.At(2).Role)
}

func TestChatNodeTurnBudget(t *testing.T) {
	t.Parallel()

	call := types.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)}
	loop := llm.ChatResponse{Message: types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{call})}
	p := &scriptProvider{script: []llm.ChatResponse{loop, loop, loop}}
	rc := providerContext(p)
	rc.Tools.Register(tools.NewFunc("echo", "", nil,
		func(ctx context.Context, params map[string]any) (any, error) { return "ok", nil }))

	n, err := newChat(def(nil))
	require.NoError(t, err)

	agent := types.Agent(&types.AgentSpec{Model: "m", MaxTurns: 2})
	conv := types.Chat(types.EmptyConversation())

	_, execErr := n.Execute(context.Background(), rc, []types.Value{agent, conv})
	assert.Equal(t, types.ErrToolCall, types.CodeOf(execErr))
}

func TestStructuredOutputValidates(t *testing.T) {
	t.Parallel()

	n, err := newStructuredOutput(def(map[string]any{"schema": map[string]any{
		"type":     "object",
		"required": []any{"score"},
	}}))
	require.NoError(t, err)

	good := &scriptProvider{script: []llm.ChatResponse{
		{Message: types.NewAssistantMessage(`{"score": 0.9}`)},
	}}
	agent := types.Agent(&types.AgentSpec{Model: "m"})
	conv := types.Chat(types.EmptyConversation())

	outs, err := n.Execute(context.Background(), providerContext(good), []types.Value{agent, conv})
	require.NoError(t, err)
	doc, _ := outs[0].AsJson()
	assert.Equal(t, map[string]any{"score": 0.9}, doc)

	bad := &scriptProvider{script: []llm.ChatResponse{
		{Message: types.NewAssistantMessage(`{"other": true}`)},
	}}
	_, execErr := n.Execute(context.Background(), providerContext(bad), []types.Value{agent, conv})
	assert.Equal(t, types.ErrValidation, types.CodeOf(execErr))
}

func TestSelectToolsChecksRegistry(t *testing.T) {
	t.Parallel()

	n, err := newSelectTools(def(map[string]any{"names": []any{"echo"}}))
	require.NoError(t, err)

	rc := &graph.RunContext{Tools: tools.NewRegistry()}
	_, execErr := n.Execute(context.Background(), rc, nil)
	assert.Equal(t, types.ErrConfig, types.CodeOf(execErr))

	rc.Tools.Register(tools.NewFunc("echo", "", nil,
		func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }))
	outs, err := n.Execute(context.Background(), rc, nil)
	require.NoError(t, err)
	sel, _ := outs[0].AsTools()
	assert.True(t, sel.Has("echo"))
}

func TestInvokeToolRunsCalls(t *testing.T) {
	t.Parallel()

	rc := &graph.RunContext{Tools: tools.NewRegistry()}
	rc.Tools.Register(tools.NewFunc("sum", "", nil,
		func(ctx context.Context, params map[string]any) (any, error) {
			return params["a"].(float64) + params["b"].(float64), nil
		}))

	n, err := newInvokeTool(def(nil))
	require.NoError(t, err)

	msg := types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{
		{ID: "1", Name: "sum", Arguments: json.RawMessage(`{"a": 1, "b": 2}`)},
	})
	outs, err := n.Execute(context.Background(), rc, []types.Value{types.Msg(msg)})
	require.NoError(t, err)

	results, _ := outs[0].AsMessageSlice()
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].Content)
	assert.Equal(t, "1", results[0].ToolCallID)

	// No tool calls on the message is its own failure code.
	_, execErr := n.Execute(context.Background(), rc, []types.Value{types.Msg(types.NewAssistantMessage("chat"))})
	assert.Equal(t, types.ErrMissingToolCall, types.CodeOf(execErr))
}
