package nodes

import (
	"context"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// CreateMessage wraps a text value into a chat message with a fixed role.
type CreateMessage struct {
	base
	role types.Role
}

func newCreateMessage(def *graph.NodeDefinition) (graph.Node, error) {
	role := types.Role(cfgString(def.Config, "role", string(types.RoleUser)))
	switch role {
	case types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool:
	default:
		return nil, types.FlowErrorf(types.ErrConfig, "create_message: unknown role %q", role)
	}
	return &CreateMessage{base: baseOf(def), role: role}, nil
}

func (n *CreateMessage) Type() string { return "create_message" }

func (n *CreateMessage) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "text", Accepts: []types.Kind{types.KindText}}},
		Outputs: []graph.OutPin{{Name: "message", Kind: types.KindMessage}},
	}
}

func (n *CreateMessage) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *CreateMessage) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "text")
	if err != nil {
		return nil, err
	}
	text, ok := in.AsText()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "create_message needs a text input")
	}
	return []types.Value{types.Msg(types.NewMessage(n.role, text))}, nil
}

// ExtendHistory appends a message to a conversation.
type ExtendHistory struct {
	base
}

func newExtendHistory(def *graph.NodeDefinition) (graph.Node, error) {
	return &ExtendHistory{base: baseOf(def)}, nil
}

func (n *ExtendHistory) Type() string { return "extend_history" }

func (n *ExtendHistory) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "chat", Accepts: []types.Kind{types.KindChat}},
			{Name: "message", Accepts: []types.Kind{types.KindMessage, types.KindMessageList}},
		},
		Outputs: []graph.OutPin{{Name: "chat", Kind: types.KindChat}},
	}
}

func (n *ExtendHistory) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *ExtendHistory) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	chatIn, err := requireInput(inputs, 0, "chat")
	if err != nil {
		return nil, err
	}
	conv, ok := chatIn.AsChat()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "extend_history needs a chat input")
	}
	msgIn, err := requireInput(inputs, 1, "message")
	if err != nil {
		return nil, err
	}
	if msg, ok := msgIn.AsMessage(); ok {
		return []types.Value{types.Chat(conv.Append(msg))}, nil
	}
	if msgs, ok := msgIn.AsMessageSlice(); ok {
		return []types.Value{types.Chat(conv.Append(msgs...))}, nil
	}
	return nil, types.NewFlowError(types.ErrConversion, "extend_history needs a message input")
}

// MaskHistory filters a conversation by role and trims it to a token
// budget, dropping the oldest non-system messages first.
type MaskHistory struct {
	base
	roles  map[types.Role]bool
	budget int
}

func newMaskHistory(def *graph.NodeDefinition) (graph.Node, error) {
	n := &MaskHistory{
		base:   baseOf(def),
		budget: cfgInt(def.Config, "budget", 0),
	}
	if names := cfgStrings(def.Config, "roles"); len(names) > 0 {
		n.roles = make(map[types.Role]bool, len(names))
		for _, name := range names {
			n.roles[types.Role(name)] = true
		}
	}
	return n, nil
}

func (n *MaskHistory) Type() string { return "mask_history" }

func (n *MaskHistory) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs:  []graph.InPin{{Name: "chat", Accepts: []types.Kind{types.KindChat}}},
		Outputs: []graph.OutPin{{Name: "chat", Kind: types.KindChat}},
	}
}

func (n *MaskHistory) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *MaskHistory) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	in, err := requireInput(inputs, 0, "chat")
	if err != nil {
		return nil, err
	}
	conv, ok := in.AsChat()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "mask_history needs a chat input")
	}
	if n.roles != nil {
		conv = conv.Filter(func(m types.Message) bool { return n.roles[m.Role] })
	}
	if n.budget > 0 {
		conv = trimToBudget(conv, n.budget, tokenizerOf(rc))
	}
	return []types.Value{types.Chat(conv)}, nil
}

func tokenizerOf(rc *graph.RunContext) types.Tokenizer {
	if rc != nil && rc.Tokens != nil {
		return rc.Tokens
	}
	return types.NewEstimateTokenizer()
}

func trimToBudget(conv *types.Conversation, budget int, tok types.Tokenizer) *types.Conversation {
	msgs := conv.Messages()
	for len(msgs) > 0 && tok.CountMessagesTokens(msgs) > budget {
		dropped := false
		for i, m := range msgs {
			if m.Role != types.RoleSystem {
				msgs = append(msgs[:i], msgs[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			break
		}
	}
	return types.NewConversation(msgs...)
}

// SideChat runs a throwaway single-turn completion against an agent without
// touching the main history, and emits the reply as a message.
type SideChat struct {
	base
}

func newSideChat(def *graph.NodeDefinition) (graph.Node, error) {
	return &SideChat{base: baseOf(def)}, nil
}

func (n *SideChat) Type() string { return "side_chat" }

func (n *SideChat) Pins() graph.PinSet {
	return graph.PinSet{
		Inputs: []graph.InPin{
			{Name: "agent", Accepts: []types.Kind{types.KindAgent}},
			{Name: "prompt", Accepts: []types.Kind{types.KindText}},
		},
		Outputs: []graph.OutPin{{Name: "message", Kind: types.KindMessage}},
	}
}

func (n *SideChat) Ready(v graph.ReadyView) bool { return graph.DefaultReady(v) }

func (n *SideChat) Execute(ctx context.Context, rc *graph.RunContext, inputs []types.Value) ([]types.Value, error) {
	spec, err := agentInput(inputs, 0)
	if err != nil {
		return nil, err
	}
	promptIn, err := requireInput(inputs, 1, "prompt")
	if err != nil {
		return nil, err
	}
	prompt, ok := promptIn.AsText()
	if !ok {
		return nil, types.NewFlowError(types.ErrConversion, "side_chat needs a text prompt")
	}

	conv := types.EmptyConversation()
	if spec.SystemPrompt != "" {
		conv = conv.Append(types.NewSystemMessage(spec.SystemPrompt))
	}
	conv = conv.Append(types.NewUserMessage(prompt))

	reply, err := complete(ctx, rc, spec, conv)
	if err != nil {
		return nil, err
	}
	return []types.Value{types.Msg(reply)}, nil
}
