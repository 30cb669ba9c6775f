package state

import (
	"context"
	"errors"
	"sync"
	"time"

	faults "github.com/folioforge/concierge/core/errors"
)

// ErrNotFound is returned by Get for a conversation with no stored state.
var ErrNotFound = errors.New("conversation state not found")

// Store persists conversation state. Reads happen once per turn and
// return an isolated snapshot; writes happen at most once per turn and
// are rejected if the snapshot's version went stale, keeping state
// single-writer per conversation.
type Store interface {
	// Get returns a snapshot of the conversation's state, or ErrNotFound.
	Get(ctx context.Context, conversationID string) (*ConversationState, error)

	// Commit atomically replaces the stored state. The new state's
	// Version must equal the stored version; on success the stored
	// version is incremented. A stale version fails with a state
	// conflict fault and leaves the stored state untouched.
	Commit(ctx context.Context, newState *ConversationState) error

	Close() error
}

// MemoryStore is the in-process Store used by tests and by deployments
// that accept state loss on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*ConversationState),
	}
}

// Get returns a deep-copied snapshot of the stored state.
func (m *MemoryStore) Get(ctx context.Context, conversationID string) (*ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stored, ok := m.states[conversationID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

// Commit applies the versioned write rule described on Store.
func (m *MemoryStore) Commit(ctx context.Context, newState *ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.states[newState.ConversationID]
	if exists && stored.Version != newState.Version {
		return faults.ErrStateConflict
	}
	if !exists && newState.Version != 0 {
		return faults.ErrStateConflict
	}

	committed := newState.Clone()
	committed.Version++
	committed.UpdatedAt = time.Now().UTC()
	m.states[newState.ConversationID] = committed
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored conversations (for tests).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
