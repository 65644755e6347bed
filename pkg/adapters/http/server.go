// Package http exposes a Supervisor as a JSON API with server-sent run events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Supervisor is the part of *wayz.Supervisor the API serves.
type Supervisor interface {
	RunConversation(ctx context.Context, conversationID string, opts ...wayz.RunOption) (*domain.State, error)
	LoadCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, bool, error)
	ListCheckpoints(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error)
	RollbackCheckpoint(ctx context.Context, id string) (*domain.State, bool, error)
	DeleteCheckpoint(ctx context.Context, id string) (bool, error)
}

// Server handles the HTTP routes.
type Server struct {
	Supervisor Supervisor
	Streams    *StreamManager

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves g on /metrics. Without it /metrics is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager whose Hooks are registered on the Supervisor.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// RunRequest is the optional body of POST /conversations/{id}/run.
type RunRequest struct {
	AutoCheckpoint *bool          `json:"auto_checkpoint,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewServer creates a Server for sup.
func NewServer(sup Supervisor, opts ...Option) *Server {
	s := &Server{Supervisor: sup, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the supervisor.
func NewHandler(sup Supervisor, opts ...Option) http.Handler {
	return NewServer(sup, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Post("/run", s.RunConversation)
		r.Get("/events", s.SubscribeEvents)
	})

	r.Route("/checkpoints", func(r chi.Router) {
		r.Get("/", s.ListCheckpoints)
		r.Get("/{checkpointID}", s.GetCheckpoint)
		r.Post("/{checkpointID}/rollback", s.RollbackCheckpoint)
		r.Delete("/{checkpointID}", s.DeleteCheckpoint)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "wayz-http",
		"version": strings.TrimSpace(wayz.Version),
	})
}

// RunConversation handles POST /conversations/{id}/run.
//
// A run that the policy gate refuses answers 403 with the state. Node
// failures answer 200; the state carries the error. Failures outside the
// workflow (policy service down, checkpoint not written) answer 502.
func (s *Server) RunConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		s.logger.Warn("RunConversation: Invalid request body", "error", err)
		return
	}

	var opts []wayz.RunOption
	if body.AutoCheckpoint != nil {
		opts = append(opts, wayz.WithAutoCheckpoint(*body.AutoCheckpoint))
	}
	if body.Metadata != nil {
		opts = append(opts, wayz.WithMetadata(body.Metadata))
	}

	before := domain.NewState(conversationID)
	state, err := s.Supervisor.RunConversation(r.Context(), conversationID, opts...)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, wayz.ErrConversationIDRequired) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		s.logger.Error("RunConversation failed", "conversation_id", conversationID, "error", err)
		return
	}

	if diff := domain.Diff(before, state); diff != nil {
		s.Streams.BroadcastJSON(conversationID, "state", diff)
	}

	status := http.StatusOK
	if state.Error == wayz.DeniedMessage {
		status = http.StatusForbidden
	}
	s.writeJSON(w, status, state)
}

// SubscribeEvents handles GET /conversations/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.Streams.Subscribe(conversationID)
	defer cancel()
	s.logger.Info("SSE: Subscribed", "conversation_id", conversationID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "conversation_id", conversationID)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}

// ListCheckpoints handles GET /checkpoints?conversation_id=.
func (s *Server) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	sums, err := s.Supervisor.ListCheckpoints(r.Context(), r.URL.Query().Get("conversation_id"))
	if err != nil {
		s.storeError(w, "ListCheckpoints", err)
		return
	}
	if sums == nil {
		sums = []domain.CheckpointSummary{}
	}
	s.writeJSON(w, http.StatusOK, sums)
}

// GetCheckpoint handles GET /checkpoints/{id}.
func (s *Server) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpointID")
	cp, ok, err := s.Supervisor.LoadCheckpoint(r.Context(), id)
	switch {
	case err != nil:
		s.storeError(w, "GetCheckpoint", err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("checkpoint %s not found", id))
	default:
		s.writeJSON(w, http.StatusOK, cp)
	}
}

// RollbackCheckpoint handles POST /checkpoints/{id}/rollback.
func (s *Server) RollbackCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpointID")
	state, ok, err := s.Supervisor.RollbackCheckpoint(r.Context(), id)
	switch {
	case err != nil:
		s.storeError(w, "RollbackCheckpoint", err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("checkpoint %s not found", id))
	default:
		s.Streams.BroadcastJSON(state.ConversationID, "rollback", map[string]string{"checkpoint_id": id})
		s.writeJSON(w, http.StatusOK, state)
	}
}

// DeleteCheckpoint handles DELETE /checkpoints/{id}.
func (s *Server) DeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpointID")
	ok, err := s.Supervisor.DeleteCheckpoint(r.Context(), id)
	switch {
	case err != nil:
		s.storeError(w, "DeleteCheckpoint", err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("checkpoint %s not found", id))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrInvalidCheckpointID) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
	s.logger.Error(op+" failed", "error", err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
