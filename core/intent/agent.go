// Package intent routes each user message to a domain agent. A cheap
// lexical stage runs first, the session context biases ties, and an
// LLM fallback handles what keywords cannot. Ambiguity never blocks a
// turn: unroutable messages default to the read-only support agent.
package intent

// Agent identifies a domain agent. The set is closed; routing can only
// ever produce values from this list.
type Agent string

const (
	AgentSupport   Agent = "support"
	AgentProfile   Agent = "profile"
	AgentProjects  Agent = "projects"
	AgentNavigator Agent = "navigator"
	AgentPlanner   Agent = "planner"
)

// AllAgents lists every routable agent.
func AllAgents() []Agent {
	return []Agent{AgentSupport, AgentProfile, AgentProjects, AgentNavigator, AgentPlanner}
}

// Valid reports whether a is a known agent.
func (a Agent) Valid() bool {
	switch a {
	case AgentSupport, AgentProfile, AgentProjects, AgentNavigator, AgentPlanner:
		return true
	}
	return false
}

// Strategy describes how the routed agents execute.
type Strategy string

const (
	// StrategySingle runs one agent to completion.
	StrategySingle Strategy = "single"

	// StrategySequence runs agents in order, each seeing the prior
	// agent's output.
	StrategySequence Strategy = "sequence"

	// StrategyPlan hands the turn to the planner, which decomposes the
	// request into a multi-step flow.
	StrategyPlan Strategy = "plan"
)

// Decision is the routing outcome for one message.
type Decision struct {
	Agents     []Agent  `json:"agents"`
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
}

// Primary returns the first routed agent.
func (d *Decision) Primary() Agent {
	if len(d.Agents) == 0 {
		return AgentSupport
	}
	return d.Agents[0]
}
