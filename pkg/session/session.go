package session

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted is returned by Consume when no model steps remain.
var ErrBudgetExhausted = errors.New("step budget exhausted")

// Session is an ordered conversation plus the remaining model-step budget.
// It is not safe for concurrent use; give each run its own Clone.
type Session struct {
	messages  []Message
	remaining int
	pending   map[string]bool
	pendOrder []string
}

// New creates an empty session with the given step budget.
func New(budget int) *Session {
	if budget < 0 {
		budget = 0
	}
	return &Session{remaining: budget}
}

// FromHistory builds a session from caller-supplied messages. The history
// must satisfy the tool-call invariant and must not end with unanswered calls.
func FromHistory(budget int, history []Message) (*Session, error) {
	s := New(budget)
	for i, msg := range history {
		if err := s.Append(msg); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if len(s.pending) > 0 {
		return nil, fmt.Errorf("history ends with %d unanswered tool calls", len(s.pending))
	}
	return s, nil
}

// Append adds a message to the end of the conversation.
func (s *Session) Append(msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	if msg.Role == RoleTool {
		if !s.pending[msg.ToolCallID] {
			return fmt.Errorf("tool result %s does not answer a pending call", msg.ToolCallID)
		}
		delete(s.pending, msg.ToolCallID)
		s.messages = append(s.messages, msg.clone())
		return nil
	}

	if len(s.pending) > 0 {
		return fmt.Errorf("cannot append %s message: %d tool calls unanswered", msg.Role, len(s.pending))
	}

	if msg.HasToolCalls() {
		s.pending = make(map[string]bool, len(msg.ToolCalls))
		s.pendOrder = s.pendOrder[:0]
		for _, call := range msg.ToolCalls {
			s.pending[call.ID] = true
			s.pendOrder = append(s.pendOrder, call.ID)
		}
	}

	s.messages = append(s.messages, msg.clone())
	return nil
}

// EnsureSystem injects a leading system message unless one is present.
func (s *Session) EnsureSystem(prompt string) {
	if prompt == "" {
		return
	}
	for _, msg := range s.messages {
		if msg.Role == RoleSystem {
			return
		}
	}
	s.messages = append([]Message{System(prompt)}, s.messages...)
}

// Consume spends one model step.
func (s *Session) Consume() error {
	if s.remaining <= 0 {
		return ErrBudgetExhausted
	}
	s.remaining--
	return nil
}

// Remaining returns the number of model steps left.
func (s *Session) Remaining() int {
	return s.remaining
}

// Len returns the number of messages.
func (s *Session) Len() int {
	return len(s.messages)
}

// Messages returns a deep copy of the conversation.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.clone()
	}
	return out
}

// Last returns the most recent message.
func (s *Session) Last() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1].clone(), true
}

// PendingCalls returns the ids of unanswered tool calls in call order.
func (s *Session) PendingCalls() []string {
	var ids []string
	for _, id := range s.pendOrder {
		if s.pending[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// FinalAnswer returns the content of the last assistant message that carries
// no tool calls.
func (s *Session) FinalAnswer() (string, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := s.messages[i]
		if msg.Role == RoleAssistant && len(msg.ToolCalls) == 0 {
			return msg.Content, true
		}
	}
	return "", false
}

// Clone returns a fully independent copy of the session.
func (s *Session) Clone() *Session {
	out := &Session{
		messages:  s.Messages(),
		remaining: s.remaining,
		pendOrder: append([]string(nil), s.pendOrder...),
	}
	if s.pending != nil {
		out.pending = make(map[string]bool, len(s.pending))
		for id, v := range s.pending {
			out.pending[id] = v
		}
	}
	return out
}

// Validate re-checks the tool-call invariant over a message sequence.
func Validate(messages []Message) error {
	_, err := FromHistory(0, messages)
	return err
}
