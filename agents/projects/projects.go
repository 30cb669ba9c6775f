// Package projects implements the portfolio-projects agent: listing,
// creating, editing, and archiving the user's portfolio entries.
package projects

import (
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/tools"
)

const systemPrompt = `You manage the user's portfolio projects: create, edit, list, and archive them, and control their public visibility.

List or read before editing so you reference real project ids, never invented ones. New projects start private; mention that when you create one. Archiving hides a project from the public portfolio, so the system will ask the user to confirm it first; do not describe an archive as done until it is.

Profile and account questions belong to a different assistant; say so briefly if asked.`

// New builds the projects agent.
func New() *agent.LLMAgent {
	return agent.NewLLMAgent(intent.AgentProjects, systemPrompt, []string{
		tools.ToolListProjects,
		tools.ToolGetProject,
		tools.ToolCreateProject,
		tools.ToolUpdateProject,
		tools.ToolArchiveProject,
	})
}
