package chat

import (
	"context"
	"testing"
)

func TestStream_OrderPreserved(t *testing.T) {
	s := NewStream()
	ctx := context.Background()

	events := []Event{
		DeltaEvent("hello "),
		ActionEvent(Action{Type: ActionNavigate, Route: "/projects"}),
		DeltaEvent("world"),
		DoneEvent(),
	}
	for _, e := range events {
		if err := s.Emit(ctx, e); err != nil {
			t.Fatalf("Emit(%s) error: %v", e.Type, err)
		}
	}

	var got []Event
	for e := range s.Events() {
		got = append(got, e)
	}

	if len(got) != len(events) {
		t.Fatalf("received %d events, want %d", len(got), len(events))
	}
	for i, e := range got {
		if e.Type != events[i].Type {
			t.Errorf("event %d = %s, want %s", i, e.Type, events[i].Type)
		}
	}
}

func TestStream_ExactlyOneTerminal(t *testing.T) {
	s := NewStream()
	ctx := context.Background()

	if err := s.Emit(ctx, DoneEvent()); err != nil {
		t.Fatalf("Emit(done) error: %v", err)
	}
	if !s.Terminated() {
		t.Error("Terminated() = false after done event")
	}

	if err := s.Emit(ctx, DoneEvent()); err == nil {
		t.Error("second terminal emit should fail")
	}
	if err := s.Emit(ctx, DeltaEvent("late")); err == nil {
		t.Error("emit after terminal should fail")
	}
}

func TestStream_ErrorIsTerminal(t *testing.T) {
	s := NewStream()
	ctx := context.Background()

	if err := s.Emit(ctx, ErrorEvent("timeout", "too slow")); err != nil {
		t.Fatalf("Emit(error) error: %v", err)
	}

	e, ok := <-s.Events()
	if !ok {
		t.Fatal("expected the error event before closure")
	}
	if !e.Terminal() {
		t.Error("error event should be terminal")
	}
	if _, ok := <-s.Events(); ok {
		t.Error("channel should be closed after terminal event")
	}
}

func TestStream_AbandonClosesWithoutTerminal(t *testing.T) {
	s := NewStream()
	ctx := context.Background()

	if err := s.Emit(ctx, DeltaEvent("partial")); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	s.Abandon()

	var sawTerminal bool
	for e := range s.Events() {
		if e.Terminal() {
			sawTerminal = true
		}
	}
	if sawTerminal {
		t.Error("abandoned stream must not deliver a terminal event")
	}

	if err := s.Emit(ctx, DeltaEvent("late")); err == nil {
		t.Error("emit after abandon should fail")
	}
}

func TestStream_FailedTerminalEmitStillAbandons(t *testing.T) {
	s := NewStreamBuffered(1)
	ctx := context.Background()

	if err := s.Emit(ctx, DeltaEvent("partial")); err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	// The buffer is full and the context is gone, so the terminal
	// never lands on the channel.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Emit(canceled, DoneEvent()); err == nil {
		t.Fatal("emit on a dead context should fail")
	}

	// The stream must still be closable; a reader draining it sees
	// the buffered delta and then closure, never a hang.
	s.Abandon()

	e, ok := <-s.Events()
	if !ok || e.Content != "partial" {
		t.Fatalf("first receive = (%+v, %v), want the buffered delta", e, ok)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("stream should be closed after Abandon")
	}
}

func TestStream_AbandonAfterTerminalIsNoop(t *testing.T) {
	s := NewStream()
	if err := s.Emit(context.Background(), DoneEvent()); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	s.Abandon() // must not panic on the closed channel
}

func TestTurnRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     TurnRequest
		wantErr bool
	}{
		{"complete", TurnRequest{Message: "hi", UserID: "u1", ConversationID: "c1"}, false},
		{"confirm without message", TurnRequest{UserID: "u1", ConversationID: "c1", Confirm: &Confirm{FlowID: "f1", Approved: true}}, false},
		{"missing conversation", TurnRequest{Message: "hi", UserID: "u1"}, true},
		{"missing user", TurnRequest{Message: "hi", ConversationID: "c1"}, true},
		{"missing message and confirm", TurnRequest{UserID: "u1", ConversationID: "c1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestActionType_Valid(t *testing.T) {
	for _, typ := range []ActionType{ActionNavigate, ActionOpenModal, ActionFocusEntity} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if ActionType("RELOAD_PAGE").Valid() {
		t.Error("unknown action type should be invalid")
	}
}
