// Package server exposes the assistant over HTTP: one streaming chat
// endpoint that relays turn events as Server-Sent Events, plus health
// probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/folioforge/concierge/core/chat"
	faults "github.com/folioforge/concierge/core/errors"
	"github.com/folioforge/concierge/core/orchestrator"
)

const keepAliveInterval = 15 * time.Second

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server serves the chat API.
type Server struct {
	config Config
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	srv    *http.Server
}

// New builds a Server around the orchestrator.
func New(config Config, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8087"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{config: config, orch: orch, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.srv = &http.Server{
		Addr:    config.Addr,
		Handler: mux,
		// Streaming responses run for the length of a turn, so no
		// WriteTimeout; header reads stay bounded.
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.config.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// handleChatStream starts a turn and relays its event stream as SSE.
// A superseded turn's stream closes without a terminal event; the
// client treats bare closure as "a newer message took over".
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stream, err := s.orch.RunTurn(r.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if faults.KindOf(err) == faults.KindSchemaValidation {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}

	sse := newSSEWriter(w)
	if sse == nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-stream.Events():
			if !ok {
				return
			}
			if err := sse.WriteEvent(event); err != nil {
				s.logger.Debug("client disconnected mid-stream",
					"conversation_id", req.ConversationID)
				return
			}
		case <-keepAlive.C:
			sse.WriteComment("ping")
		case <-r.Context().Done():
			// The turn's context descends from this one, so the run
			// stops at its next suspension point and is abandoned.
			return
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
