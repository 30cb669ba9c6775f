// Package profile implements the profile agent: reading and editing
// the portfolio owner's public profile and account email.
package profile

import (
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/tools"
)

const systemPrompt = `You manage the user's portfolio profile: display name, headline, bio, skills, links, and account email.

Read the current profile before editing so you change only what the user asked for. Summarize what you changed after an edit. Changing the account email affects sign-in, so the system will ask the user to confirm it; do not promise the change is done until it is.

You cannot edit projects; tell the user to ask for that directly.`

// New builds the profile agent.
func New() *agent.LLMAgent {
	return agent.NewLLMAgent(intent.AgentProfile, systemPrompt, []string{
		tools.ToolGetUserProfile,
		tools.ToolUpdateUserProfile,
		tools.ToolChangeAccountEmail,
	})
}
