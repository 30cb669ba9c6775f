package chat

import (
	"context"
	"fmt"
	"sync"
)

const defaultStreamBuffer = 64

// Stream is the ordered event channel for one turn. A single producer
// goroutine (the aggregator) owns Emit and Abandon; exactly one
// terminal event closes the stream and emissions after it are rejected.
type Stream struct {
	events chan Event

	mu       sync.Mutex
	terminal bool
}

// NewStream creates a turn stream with the default buffer.
func NewStream() *Stream {
	return NewStreamBuffered(defaultStreamBuffer)
}

// NewStreamBuffered creates a turn stream with the given buffer size.
func NewStreamBuffered(buffer int) *Stream {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Stream{
		events: make(chan Event, buffer),
	}
}

// Events returns the receive side of the stream. The channel closes
// after the terminal event is delivered.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Emit appends an event to the stream in order. Emitting after the
// terminal event fails; a terminal event closes the channel.
func (s *Stream) Emit(ctx context.Context, event Event) error {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return fmt.Errorf("stream already terminated, dropping %s event", event.Type)
	}
	if event.Terminal() {
		s.terminal = true
	}
	s.mu.Unlock()

	select {
	case s.events <- event:
	case <-ctx.Done():
		if event.Terminal() {
			// The terminal never made it onto the channel; clear the
			// flag so Abandon can still close the stream.
			s.mu.Lock()
			s.terminal = false
			s.mu.Unlock()
		}
		return ctx.Err()
	}

	if event.Terminal() {
		close(s.events)
	}
	return nil
}

// Terminated reports whether the terminal event has been emitted.
func (s *Stream) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Abandon closes the stream without a terminal event. Used when the
// turn is superseded and its remaining output is discarded; the client
// observes stream closure, not an error.
func (s *Stream) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}
	s.terminal = true
	close(s.events)
}
