package intent

import (
	"context"
	"strings"
)

const (
	contextPriority   = 20
	contextMethodName = "context"

	priorAgentBoost = 0.2
	uiContextBoost  = 0.15

	// maxContextBoost keeps the stacked bias below the cross-agent
	// threshold so context can only break ties, never route alone.
	maxContextBoost = 0.5
)

// ContextStage biases routing toward the conversation's recent agent
// and the UI surface the user currently has open. Its boosts are small
// enough that they never clear a routing threshold alone; they break
// ties for agents another stage already suggested.
type ContextStage struct{}

// NewContextStage returns the context bias stage.
func NewContextStage() *ContextStage {
	return &ContextStage{}
}

func (s *ContextStage) Classify(ctx context.Context, q Query) (*StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewStageResult()
	result.SetMethod(contextMethodName)
	result.Additive = true

	boosts := make(map[Agent]float64)
	signals := make(map[Agent][]string)

	if q.PriorAgent.Valid() {
		boosts[q.PriorAgent] += priorAgentBoost
		signals[q.PriorAgent] = append(signals[q.PriorAgent], "prior_agent")
	}
	if agent := agentForSection(q.UIContext.SelectedSection); agent != "" {
		boosts[agent] += uiContextBoost
		signals[agent] = append(signals[agent], "ui_section:"+q.UIContext.SelectedSection)
	}
	if agent := agentForRoute(q.Route); agent != "" {
		boosts[agent] += uiContextBoost
		signals[agent] = append(signals[agent], "ui_route:"+q.Route)
	}
	if q.UIContext.SelectedProjectID != "" {
		boosts[AgentProjects] += uiContextBoost
		signals[AgentProjects] = append(signals[AgentProjects], "selected_project")
	}

	for agent, boost := range boosts {
		if boost > maxContextBoost {
			boost = maxContextBoost
		}
		result.AddAgent(agent, boost, signals[agent])
	}

	return result, nil
}

// agentForSection maps sidebar sections of the builder UI to the agent
// whose domain owns them.
func agentForSection(section string) Agent {
	switch section {
	case "profile", "about", "account":
		return AgentProfile
	case "projects", "portfolio", "work":
		return AgentProjects
	case "help", "support":
		return AgentSupport
	default:
		return ""
	}
}

// agentForRoute maps the client-reported location to the agent whose
// domain owns that part of the app.
func agentForRoute(route string) Agent {
	switch {
	case strings.HasPrefix(route, "/profile"), strings.HasPrefix(route, "/settings"):
		return AgentProfile
	case strings.HasPrefix(route, "/projects"):
		return AgentProjects
	case strings.HasPrefix(route, "/help"):
		return AgentSupport
	default:
		return ""
	}
}

func (s *ContextStage) Name() string {
	return contextMethodName
}

func (s *ContextStage) Priority() int {
	return contextPriority
}
