package types

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindPlaceholder marks an absent or not-yet-produced value.
	KindPlaceholder Kind = iota
	// KindFailure carries a captured *FlowError on a failure pin.
	KindFailure
	KindText
	KindInteger
	KindNumber
	// KindJson holds an arbitrary decoded JSON document. JSON arrays are
	// represented here, not as a distinct list kind.
	KindJson
	// KindModel is a model identifier string.
	KindModel
	// KindAgent is an immutable agent handle.
	KindAgent
	// KindTools is a selected subset of the tool registry.
	KindTools
	// KindChat is an immutable conversation snapshot.
	KindChat
	KindMessage
	KindTextList
	KindIntList
	KindNumberList
	KindMessageList
)

var kindNames = map[Kind]string{
	KindPlaceholder: "placeholder",
	KindFailure:     "failure",
	KindText:        "text",
	KindInteger:     "integer",
	KindNumber:      "number",
	KindJson:        "json",
	KindModel:       "model",
	KindAgent:       "agent",
	KindTools:       "tools",
	KindChat:        "chat",
	KindMessage:     "message",
	KindTextList:    "text_list",
	KindIntList:     "int_list",
	KindNumberList:  "number_list",
	KindMessageList: "message_list",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// String returns the stable serialization name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindByName resolves a serialized kind name.
func KindByName(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// IsList reports whether the kind is one of the list variants.
func (k Kind) IsList() bool {
	switch k {
	case KindTextList, KindIntList, KindNumberList, KindMessageList:
		return true
	}
	return false
}

// ListOf returns the list promotion of a scalar kind. Json promotes to
// itself (its runtime value becomes an array); kinds without a list form
// are returned unchanged.
func (k Kind) ListOf() Kind {
	switch k {
	case KindText:
		return KindTextList
	case KindInteger:
		return KindIntList
	case KindNumber:
		return KindNumberList
	case KindMessage:
		return KindMessageList
	default:
		return k
	}
}

// ElementOf returns the scalar element kind of a list kind.
func (k Kind) ElementOf() Kind {
	switch k {
	case KindTextList:
		return KindText
	case KindIntList:
		return KindInteger
	case KindNumberList:
		return KindNumber
	case KindMessageList:
		return KindMessage
	default:
		return k
	}
}

// Value is an immutable tagged union over the wire value kinds. The zero
// Value is a placeholder. Construct values with the Text/Integer/... helpers
// and read them back with the As* accessors.
type Value struct {
	kind Kind

	text    string
	integer int64
	number  float64
	jsonVal any
	msg     Message
	chat    *Conversation
	agent   *AgentSpec
	tools   *ToolSelector
	failure *FlowError

	texts   []string
	ints    []int64
	numbers []float64
	msgs    []Message
}

// Empty returns the placeholder value.
func Empty() Value { return Value{} }

// PlaceholderOf returns a placeholder typed as the given kind. The engine
// treats any placeholder as "no value produced" regardless of its kind tag.
func PlaceholderOf(k Kind) Value {
	v := Value{}
	_ = k
	return v
}

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Integer wraps an int64.
func Integer(i int64) Value { return Value{kind: KindInteger, integer: i} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

// Json wraps a decoded JSON document (the result of json.Unmarshal into any).
func Json(v any) Value { return Value{kind: KindJson, jsonVal: v} }

// Model wraps a model identifier.
func Model(s string) Value { return Value{kind: KindModel, text: s} }

// Agent wraps an agent handle.
func Agent(spec *AgentSpec) Value { return Value{kind: KindAgent, agent: spec} }

// Tools wraps a tool selection.
func Tools(sel *ToolSelector) Value { return Value{kind: KindTools, tools: sel} }

// Chat wraps a conversation snapshot.
func Chat(c *Conversation) Value { return Value{kind: KindChat, chat: c} }

// Msg wraps a single message.
func Msg(m Message) Value { return Value{kind: KindMessage, msg: m} }

// Failure wraps a captured flow error.
func Failure(err *FlowError) Value { return Value{kind: KindFailure, failure: err} }

// TextList wraps a copy of the given strings.
func TextList(items []string) Value {
	return Value{kind: KindTextList, texts: append([]string(nil), items...)}
}

// IntList wraps a copy of the given integers.
func IntList(items []int64) Value {
	return Value{kind: KindIntList, ints: append([]int64(nil), items...)}
}

// NumberList wraps a copy of the given floats.
func NumberList(items []float64) Value {
	return Value{kind: KindNumberList, numbers: append([]float64(nil), items...)}
}

// MessageList wraps a copy of the given messages.
func MessageList(items []Message) Value {
	return Value{kind: KindMessageList, msgs: append([]Message(nil), items...)}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value is a placeholder.
func (v Value) IsEmpty() bool { return v.kind == KindPlaceholder }

// AsText returns the text payload of a Text or Model value.
func (v Value) AsText() (string, bool) {
	if v.kind == KindText || v.kind == KindModel {
		return v.text, true
	}
	return "", false
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	if v.kind == KindInteger {
		return v.integer, true
	}
	return 0, false
}

// AsNumber returns the float payload. Integer values convert for convenience
// since numeric pins generally admit both.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.number, true
	case KindInteger:
		return float64(v.integer), true
	}
	return 0, false
}

// AsJson returns the decoded JSON payload.
func (v Value) AsJson() (any, bool) {
	if v.kind == KindJson {
		return v.jsonVal, true
	}
	return nil, false
}

// AsAgent returns the agent handle.
func (v Value) AsAgent() (*AgentSpec, bool) {
	if v.kind == KindAgent {
		return v.agent, true
	}
	return nil, false
}

// AsTools returns the tool selection.
func (v Value) AsTools() (*ToolSelector, bool) {
	if v.kind == KindTools {
		return v.tools, true
	}
	return nil, false
}

// AsChat returns the conversation snapshot.
func (v Value) AsChat() (*Conversation, bool) {
	if v.kind == KindChat {
		return v.chat, true
	}
	return nil, false
}

// AsMessage returns the message payload.
func (v Value) AsMessage() (Message, bool) {
	if v.kind == KindMessage {
		return v.msg, true
	}
	return Message{}, false
}

// AsFailure returns the captured error.
func (v Value) AsFailure() (*FlowError, bool) {
	if v.kind == KindFailure {
		return v.failure, true
	}
	return nil, false
}

// AsTextSlice returns the text list payload. The returned slice must not be
// mutated.
func (v Value) AsTextSlice() ([]string, bool) {
	if v.kind == KindTextList {
		return v.texts, true
	}
	return nil, false
}

// AsIntSlice returns the integer list payload.
func (v Value) AsIntSlice() ([]int64, bool) {
	if v.kind == KindIntList {
		return v.ints, true
	}
	return nil, false
}

// AsNumberSlice returns the float list payload.
func (v Value) AsNumberSlice() ([]float64, bool) {
	if v.kind == KindNumberList {
		return v.numbers, true
	}
	return nil, false
}

// AsMessageSlice returns the message list payload.
func (v Value) AsMessageSlice() ([]Message, bool) {
	if v.kind == KindMessageList {
		return v.msgs, true
	}
	return nil, false
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	return reflect.DeepEqual(v, other)
}

// String renders a short human-readable form for logs. Conversations are
// masked to avoid spamming output.
func (v Value) String() string {
	switch v.kind {
	case KindPlaceholder:
		return "<empty>"
	case KindText, KindModel:
		return v.text
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindNumber:
		return fmt.Sprintf("%g", v.number)
	case KindJson:
		b, err := json.Marshal(v.jsonVal)
		if err != nil {
			return fmt.Sprintf("%v", v.jsonVal)
		}
		return string(b)
	case KindFailure:
		return "failure: " + v.failure.Error()
	case KindChat:
		return fmt.Sprintf("<chat %d msgs>", v.chat.Len())
	case KindMessage:
		return v.msg.Content
	case KindAgent:
		if v.agent != nil {
			return "<agent " + v.agent.Model + ">"
		}
		return "<agent>"
	case KindTools:
		return fmt.Sprintf("<tools %v>", v.tools.Names())
	default:
		return fmt.Sprintf("<%s len=%d>", v.kind, v.mustListLen())
	}
}

// MarshalJSON renders the value for run artifact documents.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindPlaceholder:
		return []byte("null"), nil
	case KindText, KindModel:
		return json.Marshal(v.text)
	case KindInteger:
		return json.Marshal(v.integer)
	case KindNumber:
		return json.Marshal(v.number)
	case KindJson:
		return json.Marshal(v.jsonVal)
	case KindFailure:
		return json.Marshal(map[string]string{
			"code":    string(v.failure.Code),
			"message": v.failure.Message,
		})
	case KindChat:
		return json.Marshal(v.chat.Messages())
	case KindMessage:
		return json.Marshal(v.msg)
	case KindAgent:
		return json.Marshal(v.agent)
	case KindTools:
		return json.Marshal(v.tools.Names())
	case KindTextList:
		return json.Marshal(v.texts)
	case KindIntList:
		return json.Marshal(v.ints)
	case KindNumberList:
		return json.Marshal(v.numbers)
	case KindMessageList:
		return json.Marshal(v.msgs)
	}
	return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
}

func (v Value) mustListLen() int {
	n, _ := v.ListLen()
	return n
}
