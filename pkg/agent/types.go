package agent

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/finagent/pkg/session"
)

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// State is a node of the agent state machine
type State string

const (
	StateAskModel     State = "ASK_MODEL"
	StateExecuteTools State = "EXECUTE_TOOLS"
	StateDone         State = "DONE"
)

// Result is the outcome of one run. Answered is false when the step budget
// ran out before the model produced a tool-free message.
type Result struct {
	Answer      string           `json:"answer"`
	Answered    bool             `json:"answered"`
	Steps       int              `json:"steps"`
	Session     *session.Session `json:"-"`
	Transitions []State          `json:"transitions"`
}

var newCallID = func() (string, error) { return gonanoid.New() }

// ensureCallIDs fills in missing or repeated tool call ids so every call of
// one assistant turn can be answered unambiguously.
func ensureCallIDs(calls []session.ToolCall) []session.ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]session.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = synthesizeCallID(i, seen)
		}
		seen[c.ID] = true
		if c.Arguments == nil {
			c.Arguments = map[string]interface{}{}
		}
		out[i] = c
	}
	return out
}

// synthesizeCallID returns an id not yet used in the turn. Without a random
// id it falls back to the call position.
func synthesizeCallID(pos int, seen map[string]bool) string {
	if id, err := newCallID(); err == nil && id != "" && !seen["call_"+id] {
		return "call_" + id
	}
	id := fmt.Sprintf("call_%d", pos)
	for n := 1; seen[id]; n++ {
		id = fmt.Sprintf("call_%d_%d", pos, n)
	}
	return id
}
