package state

import (
	"context"
	"errors"
	"testing"
	"time"

	faults "github.com/folioforge/concierge/core/errors"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CommitAndGet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	st := NewConversationState("c1", "u1")
	st.Route = "/projects"
	if err := store.Commit(ctx, st); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.Route != "/projects" {
		t.Errorf("Route = %q, want /projects", got.Route)
	}
}

func TestMemoryStore_StaleCommitRejected(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	base := NewConversationState("c1", "u1")
	if err := store.Commit(ctx, base); err != nil {
		t.Fatalf("initial Commit() error: %v", err)
	}

	// Two turns read the same snapshot.
	first, _ := store.Get(ctx, "c1")
	second, _ := store.Get(ctx, "c1")

	first.Route = "/profile"
	if err := store.Commit(ctx, first); err != nil {
		t.Fatalf("first Commit() error: %v", err)
	}

	second.Route = "/help"
	err := store.Commit(ctx, second)
	if faults.KindOf(err) != faults.KindStateConflict {
		t.Fatalf("stale Commit() error = %v, want state conflict", err)
	}

	// The losing write left nothing behind.
	got, _ := store.Get(ctx, "c1")
	if got.Route != "/profile" {
		t.Errorf("Route = %q, want /profile", got.Route)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestMemoryStore_NonzeroVersionOnFreshConversation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	st := NewConversationState("c1", "u1")
	st.Version = 3
	err := store.Commit(context.Background(), st)
	if faults.KindOf(err) != faults.KindStateConflict {
		t.Fatalf("Commit() error = %v, want state conflict", err)
	}
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	st := NewConversationState("c1", "u1")
	st.AppendHistory("user", "hello", 10)
	if err := store.Commit(ctx, st); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	snap, _ := store.Get(ctx, "c1")
	snap.History[0].Content = "mutated"
	snap.Route = "/projects"

	fresh, _ := store.Get(ctx, "c1")
	if fresh.History[0].Content != "hello" {
		t.Error("snapshot mutation leaked into the store")
	}
	if fresh.Route != "" {
		t.Error("snapshot field mutation leaked into the store")
	}
}

func TestConversationState_AppendHistoryLimit(t *testing.T) {
	st := NewConversationState("c1", "u1")
	for i := 0; i < 12; i++ {
		st.AppendHistory("user", "msg", 4)
	}
	if len(st.History) != 4 {
		t.Errorf("history length = %d, want 4", len(st.History))
	}
}

func TestConversationState_FlowLifecycle(t *testing.T) {
	st := NewConversationState("c1", "u1")

	st.UpsertFlow(ActiveFlow{FlowID: "f1", Type: FlowConfirmation, Status: FlowPending, CreatedAt: time.Now().UTC()})
	st.UpsertFlow(ActiveFlow{FlowID: "f2", Type: FlowPlan, Status: FlowCompleted, CreatedAt: time.Now().UTC()})

	if len(st.LiveFlows()) != 1 {
		t.Errorf("LiveFlows() = %d, want 1", len(st.LiveFlows()))
	}

	found := st.FindFlow("f1")
	if found == nil {
		t.Fatal("FindFlow(f1) = nil")
	}
	found.Status = FlowAborted

	st.PruneFlows()
	if len(st.ActiveFlows) != 0 {
		t.Errorf("after prune, %d flows remain, want 0", len(st.ActiveFlows))
	}
}
