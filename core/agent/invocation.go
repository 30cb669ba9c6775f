package agent

import (
	"time"

	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/tools"
)

// ToolCallRecord is the audit trail for one tool execution.
type ToolCallRecord struct {
	CallID    string        `json:"call_id"`
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments"`
	Status    tools.Status  `json:"status"`
	Err       string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Invocation records one agent execution inside a turn.
type Invocation struct {
	Agent       intent.Agent     `json:"agent"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	Text        string           `json:"text,omitempty"`
	Err         string           `json:"error,omitempty"`
}

// NewInvocation starts an audit record for the named agent.
func NewInvocation(name intent.Agent) *Invocation {
	return &Invocation{Agent: name, StartedAt: time.Now().UTC()}
}

// Finish stamps the completion time and error, if any.
func (inv *Invocation) Finish(err error) {
	inv.CompletedAt = time.Now().UTC()
	if err != nil {
		inv.Err = err.Error()
	}
}

// RecordToolCall appends a tool execution to the audit trail.
func (inv *Invocation) RecordToolCall(rec ToolCallRecord) {
	inv.ToolCalls = append(inv.ToolCalls, rec)
}
