// Package state holds per-conversation context and the snapshot-in,
// commit-once store the orchestrator reads and writes around each turn.
package state

import (
	"encoding/json"
	"time"

	"github.com/folioforge/concierge/core/chat"
)

// FlowStatus is the lifecycle state of an ActiveFlow.
type FlowStatus string

const (
	FlowPending    FlowStatus = "pending"
	FlowInProgress FlowStatus = "in_progress"
	FlowCompleted  FlowStatus = "completed"
	FlowAborted    FlowStatus = "aborted"
)

// FlowType distinguishes the multi-step processes tracked in state.
type FlowType string

const (
	// FlowPlan is a planner-produced sequence of (agent, goal) steps.
	FlowPlan FlowType = "plan"

	// FlowConfirmation holds a gated tool call awaiting the user's
	// explicit approval.
	FlowConfirmation FlowType = "confirmation"
)

// StepStatus is the lifecycle state of one step within a flow.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// FlowStep is one (agent, sub-goal) pair within a plan flow.
type FlowStep struct {
	Agent  string     `json:"agent"`
	Goal   string     `json:"goal"`
	Status StepStatus `json:"status"`
	Err    string     `json:"err,omitempty"`
}

// PendingCall is the stored tool call a confirmation flow re-executes
// once approved. Arguments are the already-validated raw payload; the
// approved turn runs them verbatim rather than re-deriving them.
type PendingCall struct {
	Agent     string          `json:"agent"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Prompt    string          `json:"prompt"`
}

// ActiveFlow is a named multi-step process spanning turns.
type ActiveFlow struct {
	FlowID      string       `json:"flow_id"`
	Type        FlowType     `json:"type"`
	Status      FlowStatus   `json:"status"`
	Steps       []FlowStep   `json:"steps,omitempty"`
	PendingCall *PendingCall `json:"pending_call,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PendingSteps returns the steps that have not completed yet.
func (f *ActiveFlow) PendingSteps() []FlowStep {
	var pending []FlowStep
	for _, step := range f.Steps {
		if step.Status != StepCompleted {
			pending = append(pending, step)
		}
	}
	return pending
}

// ProfileSnapshot is a cached summary of collaborator-owned profile
// data. Not a source of truth; refreshed opportunistically.
type ProfileSnapshot struct {
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Headline    string    `json:"headline,omitempty"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
}

// HistoryEntry is one prior exchange kept as short-term context.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the persisted per-conversation context. Exactly
// one live state exists per conversation id. Mutations become visible
// only after a turn commits successfully; agents operate on a snapshot.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`

	// Route is the client-reported location at the last committed
	// turn; LastAgent is the agent that handled it. Both feed the
	// context stage of the next turn's routing.
	Route     string `json:"route,omitempty"`
	LastAgent string `json:"last_agent,omitempty"`

	UIContext      chat.UIContext  `json:"ui_context"`
	Profile        ProfileSnapshot `json:"profile_snapshot"`
	ActiveFlows    []ActiveFlow    `json:"active_flows,omitempty"`
	HistorySummary string          `json:"history_summary,omitempty"`
	History        []HistoryEntry  `json:"history,omitempty"`

	// Version supports optimistic commits: a commit carrying a stale
	// version is rejected, enforcing one writer per conversation.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the initial state for a conversation's
// first turn.
func NewConversationState(conversationID, userID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
	}
}

// Clone returns a deep copy. Turns mutate the clone and commit it;
// the stored state stays untouched until the commit lands.
func (s *ConversationState) Clone() *ConversationState {
	clone := *s

	clone.ActiveFlows = make([]ActiveFlow, len(s.ActiveFlows))
	for i, flow := range s.ActiveFlows {
		clone.ActiveFlows[i] = cloneFlow(flow)
	}

	clone.History = make([]HistoryEntry, len(s.History))
	copy(clone.History, s.History)

	return &clone
}

func cloneFlow(flow ActiveFlow) ActiveFlow {
	cloned := flow
	cloned.Steps = make([]FlowStep, len(flow.Steps))
	copy(cloned.Steps, flow.Steps)

	if flow.PendingCall != nil {
		call := *flow.PendingCall
		call.Arguments = append(json.RawMessage(nil), flow.PendingCall.Arguments...)
		cloned.PendingCall = &call
	}

	return cloned
}

// FindFlow returns the active flow with the given id, or nil.
func (s *ConversationState) FindFlow(flowID string) *ActiveFlow {
	for i := range s.ActiveFlows {
		if s.ActiveFlows[i].FlowID == flowID {
			return &s.ActiveFlows[i]
		}
	}
	return nil
}

// LiveFlows returns flows that are still pending or in progress.
func (s *ConversationState) LiveFlows() []ActiveFlow {
	var live []ActiveFlow
	for _, flow := range s.ActiveFlows {
		if flow.Status == FlowPending || flow.Status == FlowInProgress {
			live = append(live, flow)
		}
	}
	return live
}

// UpsertFlow replaces the flow with a matching id or appends it.
func (s *ConversationState) UpsertFlow(flow ActiveFlow) {
	for i := range s.ActiveFlows {
		if s.ActiveFlows[i].FlowID == flow.FlowID {
			s.ActiveFlows[i] = flow
			return
		}
	}
	s.ActiveFlows = append(s.ActiveFlows, flow)
}

// PruneFlows drops completed and aborted flows.
func (s *ConversationState) PruneFlows() {
	live := s.ActiveFlows[:0]
	for _, flow := range s.ActiveFlows {
		if flow.Status == FlowPending || flow.Status == FlowInProgress {
			live = append(live, flow)
		}
	}
	s.ActiveFlows = live
}

// AppendHistory records an exchange, keeping at most limit entries.
func (s *ConversationState) AppendHistory(role, content string, limit int) {
	s.History = append(s.History, HistoryEntry{Role: role, Content: content})
	if limit > 0 && len(s.History) > limit {
		s.History = s.History[len(s.History)-limit:]
	}
}
