package navigator

import (
	"context"
	"strings"
	"testing"

	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
)

type captureSink struct {
	deltas  []string
	actions []chat.Action
}

func (s *captureSink) Delta(text string) error {
	s.deltas = append(s.deltas, text)
	return nil
}

func (s *captureSink) Action(action chat.Action) error {
	s.actions = append(s.actions, action)
	return nil
}

func newNavigatorRun(message string) (*agent.Run, *captureSink) {
	sink := &captureSink{}
	return &agent.Run{
		UserID:         "u1",
		ConversationID: "c1",
		Message:        message,
		State:          state.NewConversationState("c1", "u1"),
		Sink:           sink,
	}, sink
}

func TestNavigator_Destinations(t *testing.T) {
	tests := []struct {
		message   string
		wantType  chat.ActionType
		wantRoute string
		wantModal string
	}{
		{"take me to my projects", chat.ActionNavigate, "/projects", ""},
		{"open my profile", chat.ActionNavigate, "/profile", ""},
		{"go to account settings", chat.ActionNavigate, "/settings/account", ""},
		{"change the theme", chat.ActionNavigate, "/settings/appearance", ""},
		{"back to the dashboard", chat.ActionNavigate, "/", ""},
		{"where is the help center", chat.ActionNavigate, "/help", ""},
		{"I want to create a new project", chat.ActionOpenModal, "", "create_project"},
	}

	nav := New()
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			run, sink := newNavigatorRun(tt.message)
			if err := nav.Execute(context.Background(), run); err != nil {
				t.Fatalf("Execute() error: %v", err)
			}

			if len(sink.actions) != 1 {
				t.Fatalf("actions = %d, want 1", len(sink.actions))
			}
			action := sink.actions[0]
			if action.Type != tt.wantType {
				t.Errorf("action type = %s, want %s", action.Type, tt.wantType)
			}
			if action.Route != tt.wantRoute {
				t.Errorf("route = %q, want %q", action.Route, tt.wantRoute)
			}
			if action.ModalName != tt.wantModal {
				t.Errorf("modal = %q, want %q", action.ModalName, tt.wantModal)
			}
			if len(sink.deltas) == 0 {
				t.Error("a navigation should also say where it is going")
			}
		})
	}
}

func TestNavigator_SpecificBeatsGeneral(t *testing.T) {
	// "new project" matches both the modal entry and the projects
	// route; the modal entry is listed first and must win.
	nav := New()
	run, sink := newNavigatorRun("new project please")
	if err := nav.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(sink.actions) != 1 || sink.actions[0].Type != chat.ActionOpenModal {
		t.Errorf("actions = %+v, want the create_project modal", sink.actions)
	}
}

func TestNavigator_UnknownDestination(t *testing.T) {
	nav := New()
	run, sink := newNavigatorRun("take me to the moon")
	if err := nav.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(sink.actions) != 0 {
		t.Errorf("unknown destination emitted actions: %+v", sink.actions)
	}
	reply := strings.Join(sink.deltas, "")
	if !strings.Contains(reply, "I can open") {
		t.Errorf("reply should list destinations, got %q", reply)
	}
}

func TestNavigator_ModelPicksDestination(t *testing.T) {
	nav := New()
	run, sink := newNavigatorRun("I want to tweak how my site looks")
	run.Provider = providers.NewScriptedProvider(providers.Script{Text: "appearance"})

	if err := nav.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(sink.actions) != 1 {
		t.Fatalf("actions = %+v, want one navigation", sink.actions)
	}
	if sink.actions[0].Route != "/settings/appearance" {
		t.Errorf("route = %q, want /settings/appearance", sink.actions[0].Route)
	}
}

func TestNavigator_ModelCannotPlaceIt(t *testing.T) {
	nav := New()
	run, sink := newNavigatorRun("take me to the moon")
	run.Provider = providers.NewScriptedProvider(providers.Script{Text: "none"})

	if err := nav.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(sink.actions) != 0 {
		t.Errorf("unresolved destination emitted actions: %+v", sink.actions)
	}
	if !strings.Contains(strings.Join(sink.deltas, ""), "I can open") {
		t.Error("unresolved destination should list the known places")
	}
}

func TestNavigator_EveryActionTypeIsValid(t *testing.T) {
	for _, d := range defaultDestinations() {
		if !d.Action.Valid() {
			t.Errorf("destination %s uses invalid action type %s", d.Name, d.Action)
		}
	}
}

func TestNavigator_RecordsInvocation(t *testing.T) {
	nav := New()
	run, _ := newNavigatorRun("open my profile")
	if err := nav.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(run.Invocations) != 1 {
		t.Fatalf("invocations = %d, want 1", len(run.Invocations))
	}
	if run.Invocations[0].Text == "" {
		t.Error("invocation should record the reply")
	}
}
