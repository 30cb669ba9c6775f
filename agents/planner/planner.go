// Package planner implements the multi-domain agent. It turns a
// request spanning several domains into an ordered flow of steps and
// runs each step's agent in sequence, so the user sees one coherent
// answer instead of disjoint handoffs.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/state"
)

// defaultMaxSteps bounds a plan when the turn carries no cap of its
// own.
const defaultMaxSteps = 6

// Planner decomposes cross-domain requests into sequential steps.
type Planner struct {
	agents *agent.Registry
}

// New builds the planner over the agent registry it dispatches to.
func New(agents *agent.Registry) *Planner {
	return &Planner{agents: agents}
}

func (p *Planner) Name() intent.Agent {
	return intent.AgentPlanner
}

func (p *Planner) Execute(ctx context.Context, run *agent.Run) (err error) {
	inv := run.BeginInvocation(intent.AgentPlanner)
	defer func() { inv.Finish(err) }()

	steps := p.decompose(run)
	if len(steps) == 0 {
		return run.Sink.Delta("I couldn't break that request into steps. Try asking for one thing at a time.")
	}

	flow := p.claimFlow(run, steps)

	for i := range flow.Steps {
		step := &flow.Steps[i]
		if step.Status == state.StepCompleted {
			continue
		}

		sub, ok := p.agents.Get(intent.Agent(step.Agent))
		if !ok || intent.Agent(step.Agent) == intent.AgentPlanner {
			step.Status = state.StepFailed
			step.Err = fmt.Sprintf("no agent for step %q", step.Agent)
			continue
		}

		step.Status = state.StepInProgress
		step.Err = ""
		if stepErr := sub.Execute(ctx, run); stepErr != nil {
			step.Status = state.StepFailed
			step.Err = stepErr.Error()
			// The flow stays live; re-asking resumes at this step
			// instead of replaying the completed ones.
			run.State.UpsertFlow(flow)
			return stepErr
		}

		// A gated call inside a step pauses the whole plan; the flow
		// stays live so the confirmation can land against it.
		if run.Pending != nil {
			run.State.UpsertFlow(flow)
			return nil
		}

		step.Status = state.StepCompleted
		if i < len(flow.Steps)-1 {
			if err := run.Sink.Delta("\n\n"); err != nil {
				return err
			}
		}
	}

	flow.Status = state.FlowCompleted
	run.State.UpsertFlow(flow)
	return nil
}

// claimFlow resumes the live plan covering the same agent sequence, if
// one exists. Any other live plan is abandoned: a new unrelated request
// replaces it.
func (p *Planner) claimFlow(run *agent.Run, steps []state.FlowStep) state.ActiveFlow {
	var resumed *state.ActiveFlow
	for _, live := range run.State.LiveFlows() {
		if live.Type != state.FlowPlan {
			continue
		}
		if resumed == nil && sameAgentSequence(live.Steps, steps) {
			flow := live
			resumed = &flow
			continue
		}
		live.Status = state.FlowAborted
		run.State.UpsertFlow(live)
	}
	if resumed != nil {
		resumed.Status = state.FlowInProgress
		return *resumed
	}
	return state.ActiveFlow{
		FlowID:    uuid.NewString(),
		Type:      state.FlowPlan,
		Status:    state.FlowInProgress,
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}
}

func sameAgentSequence(a, b []state.FlowStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Agent != b[i].Agent {
			return false
		}
	}
	return true
}

// decompose orders the routed candidate agents into flow steps. The
// router's confidence ordering is preserved; the planner itself and
// duplicates are dropped, and the turn's step cap truncates the rest.
func (p *Planner) decompose(run *agent.Run) []state.FlowStep {
	maxSteps := run.MaxAgentSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	seen := make(map[intent.Agent]bool)
	steps := make([]state.FlowStep, 0, len(run.Hints))

	for _, hint := range run.Hints {
		if len(steps) >= maxSteps {
			break
		}
		if hint == intent.AgentPlanner || seen[hint] || !hint.Valid() {
			continue
		}
		seen[hint] = true
		steps = append(steps, state.FlowStep{
			Agent:  string(hint),
			Goal:   run.Message,
			Status: state.StepPending,
		})
	}
	return steps
}
