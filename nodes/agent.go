package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/tools"
	"github.com/loomworks/loom/types"
)

func agentInput(inputs []types.Value, pin int) (*types.AgentSpec, error) {
	in, err := requireInput(inputs, pin, "agent")
	if err != nil {
		return nil, err
	}
	spec, ok := in.AsAgent()
	if !ok || spec == nil {
		return nil, types.NewFlowError(types.ErrConversion, "expected an agent input")
	}
	return spec, nil
}

// complete performs one provider completion for the agent.
func complete(ctx context.Context, rc *graph.RunContext, spec *types.AgentSpec, conv *types.Conversation) (types.Message, error) {
	resp, err := completeRequest(ctx, rc, spec, conv, nil, nil)
	if err != nil {
		return types.Message{}, err
	}
	return resp.Message, nil
}

func completeRequest(ctx context.Context, rc *graph.RunContext, spec *types.AgentSpec, conv *types.Conversation, toolSchemas map[string]any, schema any) (*llm.ChatResponse, error) {
	provider, err := rc.Providers.Resolve(spec.Model)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Completion(ctx, &llm.ChatRequest{
		Model:          spec.Model,
		Messages:       conv.Messages(),
		Temperature:    spec.Temperature,
		Tools:          toolSchemas,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, types.FlowErrorf(types.ErrProvider, "completion via %s", provider.Name()).WithCause(err)
	}
	return resp, nil
}

// AgentNode builds an agent handle from its configuration and optional
// model/tool inputs. Unset fields fall back to the run seeds.
type AgentNode struct {
	base
	model        string
	systemPrompt string
	temperature  float64
	hasTemp      bool
	maxTurns     int
}

func newAgent(def *graph.NodeDefinition) (graph.Node, error) {
	_, hasTemp := def.Config["temperature"]
	return &AgentNode{
		base:         baseOf(def),
		model:        cfgString(def.Config, "model", ""),
		systemPrompt: cfgString(def.Config, "system_prompt", ""),
		temperature:  cfgFloat(def.Config, "temperature", 0),
		hasTemp:      hasTemp,
		maxTurns:     cfgInt(def.Config, "max_turns", 4),
	}, nil
}

func (n *AgentNode) Type() string { return "agent" }

func (n *AgentNode) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "model", Accepts: []types.Kind{types.KindModel}},
			{Name: "tools", Accepts: []types.Kind{types.KindTools}},
		},
		Outputs: []graph.OutPin{{Name: "agent", Kind: types.KindAgent}},
	}
}

func (n *AgentNode) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *AgentNode) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	model := n.model
	if m, ok := inputs[0].AsText(); ok && m != "" {
		model = m
	}
	if model == "" {
		model = rc.Model
	}
	temp := rc.Temperature
	if n.hasTemp {
		temp = n.temperature
	}
	spec := &types.AgentSpec{
		Model:        model,
		Temperature:  temp,
		SystemPrompt: n.systemPrompt,
		MaxTurns:     n.maxTurns,
	}
	if sel, ok := inputs[1].AsTools(); ok {
		spec.Tools = sel
	}
	return []types.Value{types.Agent(spec)}, nil
}

// Context assembles the conversation an agent will see: system prompt, then
// history, then the user prompt.
type Context struct {
	base
}

func newContext(def *graph.NodeDefinition) (graph.Node, error) {
	return &Context{base: baseOf(def)}, nil
}

func (n *Context) Type() string { return "context" }

func (n *Context) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "agent", Accepts: []types.Kind{types.KindAgent}},
			{Name: "chat", Accepts: []types.Kind{types.KindChat}},
			{Name: "prompt", Accepts: []types.Kind{types.KindText}},
		},
		Outputs: []graph.OutPin{{Name: "chat", Kind: types.KindChat}},
	}
}

func (n *Context) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *Context) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	spec, err := agentInput(inputs, 0)
	if err != nil {
		return nil, err
	}
	conv := types.EmptyConversation()
	if history, ok := inputs[1].AsChat(); ok {
		conv = history
	}
	if spec.SystemPrompt != "" {
		leading, has := types.Message{}, false
		if conv.Len() > 0 {
			leading, has = conv.At(0), true
		}
		if !has || leading.Role != types.RoleSystem {
			conv = types.NewConversation(types.NewSystemMessage(spec.SystemPrompt)).Append(conv.Messages()...)
		}
	}
	if prompt, ok := inputs[2].AsText(); ok && prompt != "" {
		conv = conv.Append(types.NewUserMessage(prompt))
	}
	return []types.Value{types.Chat(conv)}, nil
}

// ChatNode runs a provider completion over the assembled conversation,
// resolving tool calls until the model answers or the turn budget runs out.
type ChatNode struct {
	base
}

func newChat(def *graph.NodeDefinition) (graph.Node, error) {
	return &ChatNode{base: baseOf(def)}, nil
}

func (n *ChatNode) Type() string { return "chat" }

func (n *ChatNode) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "agent", Accepts: []types.Kind{types.KindAgent}},
			{Name: "chat", Accepts: []types.Kind{types.KindChat}},
		},
		Outputs: []graph.OutPin{
			{Name: "message", Kind: types.KindMessage},
			{Name: "chat", Kind: types.KindChat},
		},
	}
}

func (n *ChatNode) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *ChatNode) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	spec, err := agentInput(inputs, 0)
	if err != nil {
		return nil, err
	}
	chatIn, err := requireInput(inputs, 1, "chat")
	if err != nil {
		return nil, err
	}
	conv, ok := chatIn.AsChat()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "chat node needs a chat input")
	}

	if rc.Chain != nil {
		ctx = tools.WithRecorder(ctx, rc.Chain)
	}
	toolSchemas := rc.Tools.Schemas(spec.Tools)

	maxTurns := spec.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 4
	}
	var reply types.Message
	for turn := 0; ; turn++ {
		resp, err := completeRequest(ctx, rc, spec, conv, toolSchemas, nil)
		if err != nil {
			return nil, err
		}
		reply = resp.Message
		conv = conv.Append(reply)
		if len(reply.ToolCalls) == 0 {
			break
		}
		if turn+1 >= maxTurns {
			return nil, types.FlowErrorf(types.ErrToolCall, "tool loop exceeded %d turns", maxTurns)
		}
		results, err := executeToolCalls(ctx, rc, reply.ToolCalls)
		if err != nil {
			return nil, err
		}
		conv = conv.Append(results...)
	}
	return []types.Value{types.Msg(reply), types.Chat(conv)}, nil
}

func executeToolCalls(ctx context.Context, rc *graph.RunContext, calls []types.ToolCall) ([]types.Message, error) {
	out := make([]types.Message, 0, len(calls))
	for _, call := range calls {
		var params map[string]any
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &params); err != nil {
				return nil, types.FlowErrorf(types.ErrToolCall, "tool %q arguments are not a JSON object", call.Name).WithCause(err)
			}
		}
		result, err := rc.Tools.Execute(ctx, call.Name, params)
		if err != nil {
			return nil, err
		}
		content := fmt.Sprintf("%v", result)
		if data, err := json.Marshal(result); err == nil {
			content = string(data)
		}
		out = append(out, types.NewToolMessage(call.ID, call.Name, content))
	}
	return out, nil
}

// StructuredOutput requests a schema-constrained completion and validates
// the reply before emitting it as Json.
type StructuredOutput struct {
	base
	schema    *types.JSONSchema
	schemaDoc map[string]any
}

func newStructuredOutput(def *graph.NodeDefinition) (graph.Node, error) {
	doc := cfgMap(def.Config, "schema")
	schema, err := types.SchemaFromAny(doc)
	if err != nil {
		return nil, types.NewFlowError(types.ErrConfig, "invalid schema").WithCause(err)
	}
	if schema == nil {
		return nil, types.NewFlowError(types.ErrConfig, "structured_output needs a schema")
	}
	return &StructuredOutput{base: baseOf(def), schema: schema, schemaDoc: doc}, nil
}

func (n *StructuredOutput) Type() string { return "structured_output" }

func (n *StructuredOutput) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "agent", Accepts: []types.Kind{types.KindAgent}},
			{Name: "chat", Accepts: []types.Kind{types.KindChat}},
		},
		Outputs: []graph.OutPin{{Name: "json", Kind: types.KindJson}},
	}
}

func (n *StructuredOutput) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *StructuredOutput) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	spec, err := agentInput(inputs, 0)
	if err != nil {
		return nil, err
	}
	chatIn, err := requireInput(inputs, 1, "chat")
	if err != nil {
		return nil, err
	}
	conv, ok := chatIn.AsChat()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "structured_output needs a chat input")
	}

	resp, err := completeRequest(ctx, rc, spec, conv, nil, n.schemaDoc)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal([]byte(resp.Message.Content), &doc); err != nil {
		return nil, types.NewFlowError(types.ErrValidation, "model reply is not valid JSON").WithCause(err)
	}
	if err := n.schema.Validate(doc); err != nil {
		return nil, err
	}
	return []types.Value{types.Json(doc)}, nil
}

// SelectTools picks a named subset of the tool registry and emits it as a
// Tools value.
type SelectTools struct {
	base
	names []string
}

func newSelectTools(def *graph.NodeDefinition) (graph.Node, error) {
	names := cfgStrings(def.Config, "names")
	if len(names) == 0 {
		return nil, types.NewFlowError(types.ErrConfig, "select_tools needs at least one name")
	}
	return &SelectTools{base: baseOf(def), names: names}, nil
}

func (n *SelectTools) Type() string { return "select_tools" }

func (n *SelectTools) Pins() graph.PinSet {
	return graph.PinSet{Outputs: []graph.OutPin{{Name: "tools", Kind: types.KindTools}}}
}

func (n *SelectTools) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *SelectTools) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	for _, name := range n.names {
		if _, ok := rc.Tools.Get(name); !ok {
			return nil, types.FlowErrorf(types.ErrConfig, "tool %q not registered", name)
		}
	}
	return []types.Value{types.Tools(types.NewToolSelector(n.names...))}, nil
}

// InvokeTool executes the tool calls carried by a message and emits the
// tool result messages.
type InvokeTool struct {
	base
}

func newInvokeTool(def *graph.NodeDefinition) (graph.Node, error) {
	return &InvokeTool{base: baseOf(def)}, nil
}

func (n *InvokeTool) Type() string { return "invoke_tool" }

func (n *InvokeTool) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "message", Accepts: []types.Kind{types.KindMessage}}},
		Outputs: []graph.OutPin{{Name: "messages", Kind: types.KindMessageList}},
	}
}

func (n *InvokeTool) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *InvokeTool) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "message")
	if err != nil {
		return nil, err
	}
	msg, ok := in.AsMessage()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "invoke_tool needs a message input")
	}
	if len(msg.ToolCalls) == 0 {
		return nil, types.NewFlowError(types.ErrMissingToolCall, "message carries no tool calls")
	}
	if rc.Chain != nil {
		ctx = tools.WithRecorder(ctx, rc.Chain)
	}
	results, err := executeToolCalls(ctx, rc, msg.ToolCalls)
	if err != nil {
		return nil, err
	}
	return []types.Value{types.MessageList(results)}, nil
}
