package server

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/folioforge/concierge/agents/navigator"
	"github.com/folioforge/concierge/agents/planner"
	"github.com/folioforge/concierge/agents/profile"
	"github.com/folioforge/concierge/agents/projects"
	"github.com/folioforge/concierge/agents/support"
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/collab"
	"github.com/folioforge/concierge/core/docs"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/orchestrator"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/tools"
)

func newTestServer(t *testing.T, provider providers.Provider) *httptest.Server {
	t.Helper()

	store := state.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	index := docs.NewIndex(docs.IndexConfig{})
	if err := index.Open(); err != nil {
		t.Fatalf("open docs index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	catalog := tools.NewCatalog(collab.NewMemoryServices().Bundle(), index)

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

	orch := orchestrator.New(orchestrator.Config{}, store, router, registry, catalog, provider, slog.Default())
	srv := New(Config{}, orch, slog.Default())

	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body *bufio.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return events
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if current.name != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		}
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, providers.NewScriptedProvider())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestChatStream(t *testing.T) {
	provider := providers.NewScriptedProvider(providers.Script{
		Text: "Your profile bio reads well.",
	})
	ts := newTestServer(t, provider)

	payload := `{"message":"how is my profile bio","user_id":"u1","conversation_id":"c1"}`
	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /v1/chat/stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := readSSE(t, bufio.NewReader(resp.Body))
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	if last := events[len(events)-1]; last.name != string(chat.EventDone) {
		t.Errorf("last event = %q, want done", last.name)
	}

	var text strings.Builder
	for _, e := range events {
		if e.name != string(chat.EventMessageDelta) {
			continue
		}
		var ev chat.Event
		if err := json.Unmarshal([]byte(e.data), &ev); err != nil {
			t.Fatalf("delta payload %q: %v", e.data, err)
		}
		text.WriteString(ev.Content)
	}
	if !strings.Contains(text.String(), "profile bio reads well") {
		t.Errorf("streamed text = %q", text.String())
	}
}

func TestChatStreamBadJSON(t *testing.T) {
	ts := newTestServer(t, providers.NewScriptedProvider())

	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatStreamMissingFields(t *testing.T) {
	ts := newTestServer(t, providers.NewScriptedProvider())

	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body missing message")
	}
}
