// Package navigator implements the navigation agent. A destination
// table of glob patterns maps utterances to UI actions; when no
// pattern matches, the model is asked to pick a destination from the
// table, and only if that also fails does the user get a short list of
// places the assistant can open.
package navigator

import (
	"context"
	"strings"

	"github.com/gobwas/glob"

	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/providers"
)

// Destination is one navigable surface of the builder UI.
type Destination struct {
	Name     string
	Route    string
	Modal    string
	Action   chat.ActionType
	Reply    string
	patterns []glob.Glob
}

func compile(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

// Matches reports whether the lowercased message matches any of the
// destination's patterns.
func (d *Destination) Matches(message string) bool {
	for _, g := range d.patterns {
		if g.Match(message) {
			return true
		}
	}
	return false
}

// defaultDestinations is ordered: more specific entries come first so
// "new project" opens the modal rather than navigating to the list.
func defaultDestinations() []Destination {
	return []Destination{
		{
			Name:     "new project",
			Modal:    "create_project",
			Action:   chat.ActionOpenModal,
			Reply:    "Opening the new project form.",
			patterns: compile("*new project*", "*create*project*", "*add*project*"),
		},
		{
			Name:     "projects",
			Route:    "/projects",
			Action:   chat.ActionNavigate,
			Reply:    "Taking you to your projects.",
			patterns: compile("*project*", "*portfolio*", "*my work*"),
		},
		{
			Name:     "profile",
			Route:    "/profile",
			Action:   chat.ActionNavigate,
			Reply:    "Taking you to your profile.",
			patterns: compile("*profile*", "*bio*", "*about me*"),
		},
		{
			Name:     "account settings",
			Route:    "/settings/account",
			Action:   chat.ActionNavigate,
			Reply:    "Opening your account settings.",
			patterns: compile("*account*", "*settings*", "*email*", "*password*"),
		},
		{
			Name:     "appearance",
			Route:    "/settings/appearance",
			Action:   chat.ActionNavigate,
			Reply:    "Opening appearance settings.",
			patterns: compile("*theme*", "*appearance*", "*colors*", "*font*"),
		},
		{
			Name:     "dashboard",
			Route:    "/",
			Action:   chat.ActionNavigate,
			Reply:    "Taking you to your dashboard.",
			patterns: compile("*dashboard*", "*home*", "*overview*"),
		},
		{
			Name:     "help center",
			Route:    "/help",
			Action:   chat.ActionNavigate,
			Reply:    "Opening the help center.",
			patterns: compile("*help*", "*docs*", "*documentation*"),
		},
	}
}

// Navigator routes "take me to" requests to UI actions.
type Navigator struct {
	destinations []Destination
}

// New builds the navigator with the default destination table.
func New() *Navigator {
	return &Navigator{destinations: defaultDestinations()}
}

func (n *Navigator) Name() intent.Agent {
	return intent.AgentNavigator
}

func (n *Navigator) Execute(ctx context.Context, run *agent.Run) (err error) {
	inv := run.BeginInvocation(intent.AgentNavigator)
	defer func() { inv.Finish(err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	message := strings.ToLower(run.Message)
	d := n.match(message)
	if d == nil {
		d = n.resolveViaModel(ctx, run)
	}
	if d == nil {
		reply := n.unknownDestinationReply()
		inv.Text = reply
		return run.Sink.Delta(reply)
	}

	action := chat.Action{
		Type:      d.Action,
		Route:     d.Route,
		ModalName: d.Modal,
	}
	if err := run.Sink.Action(action); err != nil {
		return err
	}
	inv.Text = d.Reply
	return run.Sink.Delta(d.Reply)
}

func (n *Navigator) match(message string) *Destination {
	for i := range n.destinations {
		if n.destinations[i].Matches(message) {
			return &n.destinations[i]
		}
	}
	return nil
}

// resolveViaModel asks the model to pick a destination name from the
// table when no pattern matched. Anything but an exact table entry in
// the reply resolves to nothing.
func (n *Navigator) resolveViaModel(ctx context.Context, run *agent.Run) *Destination {
	if run.Provider == nil {
		return nil
	}

	names := make([]string, 0, len(n.destinations))
	for _, d := range n.destinations {
		names = append(names, d.Name)
	}
	temp := 0.0
	resp, err := run.Provider.Generate(ctx, &providers.Request{
		SystemPrompt: "You map a user's request to one destination in a portfolio builder. " +
			"Reply with exactly one of: " + strings.Join(names, ", ") +
			". Reply \"none\" if nothing fits.",
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: run.Message}},
		Temperature: &temp,
		MaxTokens:   16,
	})
	if err != nil {
		return nil
	}

	reply := strings.ToLower(strings.TrimSpace(resp.Content))
	for i := range n.destinations {
		if strings.Contains(reply, n.destinations[i].Name) {
			return &n.destinations[i]
		}
	}
	return nil
}

func (n *Navigator) unknownDestinationReply() string {
	names := make([]string, 0, len(n.destinations))
	for _, d := range n.destinations {
		names = append(names, d.Name)
	}
	return "I'm not sure where you want to go. I can open: " + strings.Join(names, ", ") + "."
}
