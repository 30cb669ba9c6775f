package orchestrator

import (
	"context"
	"sync"
)

// turnHandle identifies one in-flight turn.
type turnHandle struct {
	turnID string
	cancel context.CancelFunc
}

// superseder enforces one live turn per conversation: starting a new
// turn cancels whatever turn the conversation already has running.
type superseder struct {
	mu     sync.Mutex
	active map[string]*turnHandle
}

func newSuperseder() *superseder {
	return &superseder{active: make(map[string]*turnHandle)}
}

// Begin registers a turn, cancelling the conversation's prior turn if
// one is still running.
func (s *superseder) Begin(conversationID, turnID string, cancel context.CancelFunc) {
	s.mu.Lock()
	prior := s.active[conversationID]
	s.active[conversationID] = &turnHandle{turnID: turnID, cancel: cancel}
	s.mu.Unlock()

	if prior != nil {
		prior.cancel()
	}
}

// End deregisters a turn. A turn that was already superseded leaves
// the newer registration untouched.
func (s *superseder) End(conversationID, turnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.active[conversationID]; ok && h.turnID == turnID {
		delete(s.active, conversationID)
	}
}

// IsCurrent reports whether the turn still owns its conversation.
func (s *superseder) IsCurrent(conversationID, turnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[conversationID]
	return ok && h.turnID == turnID
}
