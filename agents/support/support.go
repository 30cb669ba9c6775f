// Package support implements the read-only help agent: documentation
// search, the known-issue register, and ticket filing. Routing falls
// back here whenever intent is unclear, so its prompt assumes nothing
// about why the user arrived.
package support

import (
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/tools"
)

const systemPrompt = `You are the help assistant inside a portfolio-builder web app. You answer product questions, troubleshoot problems, and file support tickets.

Ground every product answer in the documentation: search it before answering how-to questions. When the user reports something broken, check the known-issue register first and say so if their problem is already known. Offer to file a ticket when you cannot resolve the problem; never file one without being asked or offering first.

If the user's request is actually about editing their profile or projects, briefly explain what they can ask for instead of guessing. Keep answers short and concrete.`

// New builds the support agent.
func New() *agent.LLMAgent {
	return agent.NewLLMAgent(intent.AgentSupport, systemPrompt, []string{
		tools.ToolSearchDocs,
		tools.ToolGetKnownIssues,
		tools.ToolCreateTicket,
		tools.ToolGetUserProfile,
	})
}
