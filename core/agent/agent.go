// Package agent defines the domain-agent contract and the shared
// provider/tool execution loop. An agent sees only the tools it was
// registered with; everything it streams goes through the turn's Sink
// so the orchestrator controls ordering and supersession.
package agent

import (
	"context"

	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/tools"
)

// Sink receives an agent's incremental output in order.
type Sink interface {
	Delta(text string) error
	Action(action chat.Action) error
}

// Run is the per-turn execution context handed to an agent. State is
// the turn's working snapshot; agents may mutate it, and the
// orchestrator commits it once at the end of the turn.
type Run struct {
	UserID         string
	ConversationID string
	Message        string

	State *state.ConversationState

	Sink     Sink
	Tools    *tools.Registry
	Provider providers.Provider

	MaxToolRounds int

	// MaxAgentSteps caps how many plan steps a single turn may run.
	// Zero means the planner's default.
	MaxAgentSteps int

	// Hints carries the routed candidate agents, in confidence order.
	// Only the planner reads them.
	Hints []intent.Agent

	// Invocations is the turn's audit trail, one record per agent
	// execution. Nested executions (planner steps) append their own.
	Invocations []*Invocation

	// Pending is set when a gated tool call stopped the run to await
	// the user's explicit confirmation.
	Pending       *state.PendingCall
	PendingPrompt string
}

// BeginInvocation opens an audit record for an agent execution and
// adds it to the turn's trail.
func (r *Run) BeginInvocation(name intent.Agent) *Invocation {
	inv := NewInvocation(name)
	r.Invocations = append(r.Invocations, inv)
	return inv
}

// Agent is one domain specialist.
type Agent interface {
	Name() intent.Agent
	Execute(ctx context.Context, run *Run) error
}

// Registry maps agent names to implementations.
type Registry struct {
	agents map[intent.Agent]Agent
}

// NewAgentRegistry builds a registry from the given agents.
func NewAgentRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[intent.Agent]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Register adds an agent, replacing any prior entry with that name.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name()] = a
}

// Get returns the named agent.
func (r *Registry) Get(name intent.Agent) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}
