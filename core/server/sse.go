package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/folioforge/concierge/core/chat"
)

// sseWriter sends Server-Sent Events to an http.ResponseWriter,
// flushing after every event so deltas reach the client as they are
// produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. Returns nil
// if the ResponseWriter does not support http.Flusher.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}
}

// WriteEvent writes one turn event as a named SSE event.
func (s *sseWriter) WriteEvent(event chat.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteComment writes an SSE comment, used as a keep-alive ping.
func (s *sseWriter) WriteComment(text string) {
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flusher.Flush()
}
