package orchestrator

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/folioforge/concierge/agents/navigator"
	"github.com/folioforge/concierge/agents/planner"
	"github.com/folioforge/concierge/agents/profile"
	"github.com/folioforge/concierge/agents/projects"
	"github.com/folioforge/concierge/agents/support"
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/collab"
	"github.com/folioforge/concierge/core/docs"
	faults "github.com/folioforge/concierge/core/errors"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/tools"
)

type testEnv struct {
	orch    *Orchestrator
	store   *state.MemoryStore
	backend *collab.MemoryServices
}

func newTestEnv(t *testing.T, provider providers.Provider, config Config) *testEnv {
	t.Helper()

	store := state.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	index := docs.NewIndex(docs.IndexConfig{})
	if err := index.Open(); err != nil {
		t.Fatalf("open docs index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	backend := collab.NewMemoryServices()
	catalog := tools.NewCatalog(backend.Bundle(), index)

	router, err := intent.NewRouter(intent.RouterConfig{}, slog.Default(),
		intent.NewLexicalStage(nil),
		intent.NewContextStage(),
	)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	registry := agent.NewAgentRegistry(
		support.New(),
		profile.New(),
		projects.New(),
		navigator.New(),
	)
	registry.Register(planner.New(registry))

	orch := New(config, store, router, registry, catalog, provider, slog.Default())
	return &testEnv{orch: orch, store: store, backend: backend}
}

// drain collects every event until the stream closes.
func drain(t *testing.T, stream *chat.Stream) []chat.Event {
	t.Helper()
	var events []chat.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events so far", len(events))
		}
	}
}

func terminalOf(events []chat.Event) *chat.Event {
	for i := range events {
		if events[i].Terminal() {
			return &events[i]
		}
	}
	return nil
}

func textOf(events []chat.Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type == chat.EventMessageDelta {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

func TestOrchestrator_HappyPath(t *testing.T) {
	provider := providers.NewScriptedProvider(providers.Script{
		Text: "Your profile looks solid. Want me to tighten the headline?",
	})
	env := newTestEnv(t, provider, Config{})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "how does my profile bio look",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	terminal := terminalOf(events)
	if terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("terminal = %+v, want done", terminal)
	}
	if terminal != &events[len(events)-1] {
		t.Error("terminal event must come last")
	}
	if !strings.Contains(textOf(events), "profile looks solid") {
		t.Errorf("streamed text = %q", textOf(events))
	}

	st, err := env.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("state not committed: %v", err)
	}
	if st.Version != 1 {
		t.Errorf("Version = %d, want 1", st.Version)
	}
	if st.LastAgent != "profile" {
		t.Errorf("LastAgent = %q, want profile", st.LastAgent)
	}
	if len(st.History) != 2 {
		t.Fatalf("history entries = %d, want user+assistant", len(st.History))
	}
	if st.History[0].Role != "user" || st.History[1].Role != "assistant" {
		t.Errorf("history roles = %s, %s", st.History[0].Role, st.History[1].Role)
	}
}

func TestOrchestrator_InvalidRequestRejected(t *testing.T) {
	env := newTestEnv(t, providers.NewScriptedProvider(), Config{})

	_, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{Message: "hi"})
	if err == nil {
		t.Fatal("request without ids should be rejected")
	}
	if faults.KindOf(err) != faults.KindSchemaValidation {
		t.Errorf("error kind = %s, want schema_validation", faults.KindOf(err))
	}
}

func runConfirmationSetupTurn(t *testing.T, env *testEnv) string {
	t.Helper()

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "archive my old portfolio project",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	events := drain(t, stream)
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("setup turn terminal = %+v", terminal)
	}
	if !strings.Contains(textOf(events), "Archive project") {
		t.Fatalf("confirmation prompt not streamed: %q", textOf(events))
	}

	st, err := env.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	flows := st.LiveFlows()
	if len(flows) != 1 || flows[0].Type != state.FlowConfirmation {
		t.Fatalf("live flows = %+v, want one confirmation flow", flows)
	}
	if flows[0].PendingCall == nil || flows[0].PendingCall.Tool != tools.ToolArchiveProject {
		t.Fatalf("pending call = %+v", flows[0].PendingCall)
	}
	return flows[0].FlowID
}

func newConfirmationEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := providers.NewScriptedProvider(providers.Script{
		Text: "That project is ready to retire.",
		ToolCalls: []providers.ToolCall{
			{ID: "t1", Name: tools.ToolArchiveProject, Arguments: `{"project_id":"p1"}`},
		},
	})
	env := newTestEnv(t, provider, Config{})
	env.backend.SeedProject(collab.Project{
		ID: "p1", UserID: "u1", Title: "Old Portfolio", Visibility: collab.VisibilityPublic,
	})
	return env
}

func TestOrchestrator_ConfirmationApproved(t *testing.T) {
	env := newConfirmationEnv(t)
	flowID := runConfirmationSetupTurn(t, env)
	ctx := context.Background()

	stream, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Confirm:        &chat.Confirm{FlowID: flowID, Approved: true},
	})
	if err != nil {
		t.Fatalf("confirm RunTurn() error: %v", err)
	}
	events := drain(t, stream)
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("confirm terminal = %+v", terminal)
	}

	project, err := env.backend.GetProject(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	if !project.Archived {
		t.Error("approved confirmation should have archived the project")
	}

	st, _ := env.store.Get(ctx, "c1")
	if len(st.LiveFlows()) != 0 {
		t.Errorf("resolved flow still live: %+v", st.LiveFlows())
	}
}

func TestOrchestrator_ConfirmationDeclined(t *testing.T) {
	env := newConfirmationEnv(t)
	flowID := runConfirmationSetupTurn(t, env)
	ctx := context.Background()

	stream, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Confirm:        &chat.Confirm{FlowID: flowID, Approved: false},
	})
	if err != nil {
		t.Fatalf("decline RunTurn() error: %v", err)
	}
	events := drain(t, stream)
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("decline terminal = %+v", terminal)
	}

	project, _ := env.backend.GetProject(ctx, "u1", "p1")
	if project.Archived {
		t.Error("declined confirmation must not archive")
	}

	st, _ := env.store.Get(ctx, "c1")
	if len(st.LiveFlows()) != 0 {
		t.Errorf("declined flow still live: %+v", st.LiveFlows())
	}
}

func TestOrchestrator_FreeTextNeverConfirms(t *testing.T) {
	env := newConfirmationEnv(t)
	runConfirmationSetupTurn(t, env)
	ctx := context.Background()

	// "yes please" arrives as a normal message, not a Confirm payload.
	env.orch.provider.(*providers.ScriptedProvider).Append(providers.Script{
		Text: "Just to be safe, use the confirm button for that.",
	})
	stream, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		Message:        "yes please",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	drain(t, stream)

	project, _ := env.backend.GetProject(ctx, "u1", "p1")
	if project.Archived {
		t.Fatal("free text executed a gated call")
	}

	// The pending confirmation survives for an explicit answer.
	st, _ := env.store.Get(ctx, "c1")
	if len(st.LiveFlows()) != 1 {
		t.Errorf("pending flow dropped: %+v", st.LiveFlows())
	}
}

func TestOrchestrator_ExpiredConfirmation(t *testing.T) {
	env := newTestEnv(t, providers.NewScriptedProvider(), Config{})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Confirm:        &chat.Confirm{FlowID: "no-such-flow", Approved: true},
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	events := drain(t, stream)
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("terminal = %+v", terminal)
	}
	if !strings.Contains(textOf(events), "expired") {
		t.Errorf("reply = %q", textOf(events))
	}
}

// stallProvider blocks its first stream until the context is cancelled;
// later calls answer normally.
type stallProvider struct {
	started chan struct{}
	inner   *providers.ScriptedProvider
	calls   int
}

func newStallProvider(scripts ...providers.Script) *stallProvider {
	return &stallProvider{
		started: make(chan struct{}),
		inner:   providers.NewScriptedProvider(scripts...),
	}
}

func (p *stallProvider) Name() string { return "stall" }

func (p *stallProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	return p.inner.Generate(ctx, req)
}

func (p *stallProvider) Stream(ctx context.Context, req *providers.Request, handler providers.StreamHandler) error {
	p.calls++
	if p.calls == 1 {
		close(p.started)
		<-ctx.Done()
		return ctx.Err()
	}
	return p.inner.Stream(ctx, req, handler)
}

func (p *stallProvider) Close() error { return nil }

func TestOrchestrator_Supersession(t *testing.T) {
	provider := newStallProvider(providers.Script{Text: "Here is the newer answer."})
	env := newTestEnv(t, provider, Config{})
	ctx := context.Background()

	first, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		Message:        "tell me about my profile bio",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("first RunTurn() error: %v", err)
	}
	<-provider.started

	second, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		Message:        "actually, about my profile headline instead",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("second RunTurn() error: %v", err)
	}

	firstEvents := drain(t, first)
	if terminal := terminalOf(firstEvents); terminal != nil {
		t.Errorf("superseded stream got terminal event %+v", terminal)
	}

	secondEvents := drain(t, second)
	if terminal := terminalOf(secondEvents); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("second terminal = %+v", terminal)
	}
	if !strings.Contains(textOf(secondEvents), "newer answer") {
		t.Errorf("second turn text = %q", textOf(secondEvents))
	}

	// Only the winning turn committed.
	st, err := env.store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if st.Version != 1 {
		t.Errorf("Version = %d, want 1 (single commit)", st.Version)
	}
	if len(st.History) != 2 || !strings.Contains(st.History[0].Content, "headline") {
		t.Errorf("history = %+v, want only the second turn", st.History)
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	provider := newStallProvider()
	env := newTestEnv(t, provider, Config{TurnBudget: 100 * time.Millisecond})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "tell me about my profile bio",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	terminal := terminalOf(events)
	if terminal == nil || terminal.Type != chat.EventError {
		t.Fatalf("terminal = %+v, want error", terminal)
	}
	if terminal.Kind != string(faults.KindTimeout) {
		t.Errorf("error kind = %s, want timeout", terminal.Kind)
	}

	// Nothing committed.
	if _, err := env.store.Get(context.Background(), "c1"); err == nil {
		t.Error("timed-out turn must not commit state")
	}
}

// conflictStore rejects every commit with a version conflict.
type conflictStore struct {
	*state.MemoryStore
}

func (s *conflictStore) Commit(ctx context.Context, newState *state.ConversationState) error {
	return faults.ErrStateConflict
}

func TestOrchestrator_CommitConflictSurfaces(t *testing.T) {
	provider := providers.NewScriptedProvider(providers.Script{Text: "Answer."})
	env := newTestEnv(t, provider, Config{})
	env.orch.store = &conflictStore{MemoryStore: env.store}

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "how is my profile bio",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	terminal := terminalOf(events)
	if terminal == nil || terminal.Type != chat.EventError {
		t.Fatalf("terminal = %+v, want error", terminal)
	}
	if terminal.Kind != string(faults.KindStateConflict) {
		t.Errorf("error kind = %s, want state_conflict", terminal.Kind)
	}
}

func actionsOf(events []chat.Event) []chat.Action {
	var actions []chat.Action
	for _, e := range events {
		if e.Type == chat.EventAction && e.Action != nil {
			actions = append(actions, *e.Action)
		}
	}
	return actions
}

func TestOrchestrator_NavigationBeatsDomainNoun(t *testing.T) {
	// "take me to my projects" names the projects domain but asks to
	// go there; the whole turn must be a single navigation, not a
	// domain handoff or a fallback to support.
	env := newTestEnv(t, providers.NewScriptedProvider(), Config{})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "take me to my projects",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	actions := actionsOf(events)
	if len(actions) != 1 {
		t.Fatalf("actions = %+v, want exactly one", actions)
	}
	if actions[0].Type != chat.ActionNavigate || actions[0].Route != "/projects" {
		t.Errorf("action = %+v, want navigate to /projects", actions[0])
	}
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("terminal = %+v, want done", terminal)
	}

	st, err := env.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if st.LastAgent != "navigator" {
		t.Errorf("LastAgent = %q, want navigator", st.LastAgent)
	}
}

func TestOrchestrator_PersistsClientContext(t *testing.T) {
	provider := providers.NewScriptedProvider(providers.Script{Text: "Looks good."})
	env := newTestEnv(t, provider, Config{})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "how does my profile bio look",
		UserID:         "u1",
		ConversationID: "c1",
		Route:          "/projects",
		UIContext:      chat.UIContext{SelectedProjectID: "p1"},
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	drain(t, stream)

	st, err := env.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if st.Route != "/projects" {
		t.Errorf("Route = %q, want the client-reported /projects", st.Route)
	}
	if st.LastAgent != "profile" {
		t.Errorf("LastAgent = %q, want profile", st.LastAgent)
	}
	if st.UIContext.SelectedProjectID != "p1" {
		t.Errorf("SelectedProjectID = %q, want p1", st.UIContext.SelectedProjectID)
	}
}

func TestOrchestrator_ClientDisconnectAbandons(t *testing.T) {
	provider := newStallProvider()
	env := newTestEnv(t, provider, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := env.orch.RunTurn(ctx, &chat.TurnRequest{
		Message:        "tell me about my profile bio",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	<-provider.started
	cancel()

	events := drain(t, stream)
	if terminal := terminalOf(events); terminal != nil {
		t.Errorf("disconnected turn got terminal event %+v", terminal)
	}

	// Nothing committed on behalf of a client that went away.
	if _, err := env.store.Get(context.Background(), "c1"); err == nil {
		t.Error("abandoned turn must not commit state")
	}
}

// scriptedActionAgent streams a fixed reply and actions; it stands in
// for a domain agent inside plan-ordering tests.
type scriptedActionAgent struct {
	name    intent.Agent
	reply   string
	actions []chat.Action
}

func (a *scriptedActionAgent) Name() intent.Agent { return a.name }

func (a *scriptedActionAgent) Execute(ctx context.Context, run *agent.Run) error {
	inv := run.BeginInvocation(a.name)
	defer inv.Finish(nil)
	for _, action := range a.actions {
		if err := run.Sink.Action(action); err != nil {
			return err
		}
	}
	inv.Text = a.reply
	return run.Sink.Delta(a.reply)
}

func TestOrchestrator_PlanStreamsActionsInStepOrder(t *testing.T) {
	store := state.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	router, err := intent.NewRouter(intent.RouterConfig{}, slog.Default(),
		intent.NewLexicalStage(nil),
		intent.NewContextStage(),
	)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	registry := agent.NewAgentRegistry(
		support.New(),
		&scriptedActionAgent{
			name:  intent.AgentProjects,
			reply: "Archived the old project.",
			actions: []chat.Action{
				{Type: chat.ActionNavigate, Route: "/projects"},
				{Type: chat.ActionFocusEntity, Params: map[string]any{"project_id": "p1"}},
			},
		},
		&scriptedActionAgent{
			name:    intent.AgentProfile,
			reply:   "Profile updated.",
			actions: []chat.Action{{Type: chat.ActionOpenModal, ModalName: "edit_profile"}},
		},
	)
	registry.Register(planner.New(registry))

	orch := New(Config{}, store, router, registry, tools.NewRegistry(),
		providers.NewScriptedProvider(), slog.Default())

	stream, err := orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "update my profile bio and headline, and then archive the old portfolio project and fix its tags",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	actions := actionsOf(events)
	if len(actions) != 3 {
		t.Fatalf("actions = %+v, want three", actions)
	}

	// Projects scored higher, so its step runs first and its actions
	// arrive before the profile step's.
	want := []chat.ActionType{chat.ActionNavigate, chat.ActionFocusEntity, chat.ActionOpenModal}
	for i, a := range actions {
		if a.Type != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, a.Type, want[i])
		}
	}
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Fatalf("terminal = %+v, want done", terminal)
	}
}

func TestOrchestrator_LogsInvocationSummary(t *testing.T) {
	provider := providers.NewScriptedProvider(providers.Script{Text: "Looks fine."})
	env := newTestEnv(t, provider, Config{})

	var buf bytes.Buffer
	env.orch.logger = slog.New(slog.NewTextHandler(&buf, nil))

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "how does my profile bio look",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	drain(t, stream)

	logged := buf.String()
	if !strings.Contains(logged, "agent invocation") {
		t.Errorf("no invocation summary logged: %q", logged)
	}
	if !strings.Contains(logged, "agent=profile") {
		t.Errorf("summary missing the agent name: %q", logged)
	}
}

func TestOrchestrator_NavigationAction(t *testing.T) {
	env := newTestEnv(t, providers.NewScriptedProvider(), Config{})

	stream, err := env.orch.RunTurn(context.Background(), &chat.TurnRequest{
		Message:        "take me to the dashboard",
		UserID:         "u1",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}

	events := drain(t, stream)
	var action *chat.Action
	for _, e := range events {
		if e.Type == chat.EventAction {
			action = e.Action
		}
	}
	if action == nil {
		t.Fatal("navigation turn emitted no action")
	}
	if action.Type != chat.ActionNavigate || action.Route != "/" {
		t.Errorf("action = %+v, want navigate to /", action)
	}
	if terminal := terminalOf(events); terminal == nil || terminal.Type != chat.EventDone {
		t.Errorf("terminal = %+v", terminal)
	}
}
