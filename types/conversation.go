package types

// Conversation is an immutable ordered message sequence. Operations return
// a new Conversation; the receiver and its backing storage are never
// modified, so snapshots can be shared freely across runs and subgraphs.
type Conversation struct {
	msgs []Message
}

// NewConversation builds a conversation from a copy of the given messages.
func NewConversation(msgs ...Message) *Conversation {
	return &Conversation{msgs: append([]Message(nil), msgs...)}
}

// EmptyConversation returns a conversation with no messages.
func EmptyConversation() *Conversation {
	return &Conversation{}
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.msgs)
}

// Messages returns a copy of the message sequence.
func (c *Conversation) Messages() []Message {
	if c == nil {
		return nil
	}
	return append([]Message(nil), c.msgs...)
}

// At returns the i-th message.
func (c *Conversation) At(i int) Message {
	return c.msgs[i]
}

// Last returns the final message and whether one exists.
func (c *Conversation) Last() (Message, bool) {
	if c.Len() == 0 {
		return Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

// Append returns a new conversation with the messages added at the end.
func (c *Conversation) Append(msgs ...Message) *Conversation {
	out := make([]Message, 0, c.Len()+len(msgs))
	if c != nil {
		out = append(out, c.msgs...)
	}
	out = append(out, msgs...)
	return &Conversation{msgs: out}
}

// Filter returns a new conversation holding only messages the keep
// predicate accepts, in the original order.
func (c *Conversation) Filter(keep func(Message) bool) *Conversation {
	if c == nil {
		return EmptyConversation()
	}
	out := make([]Message, 0, len(c.msgs))
	for _, m := range c.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	return &Conversation{msgs: out}
}

// IsPrefixOf reports whether c's messages form a leading subsequence of
// other. Used to check that a workflow's final history still descends from
// the session snapshot it started with.
func (c *Conversation) IsPrefixOf(other *Conversation) bool {
	if c.Len() > other.Len() {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		if !sameMessage(c.msgs[i], other.msgs[i]) {
			return false
		}
	}
	return true
}

func sameMessage(a, b Message) bool {
	return a.Role == b.Role && a.Content == b.Content && a.Name == b.Name && a.ToolCallID == b.ToolCallID
}
