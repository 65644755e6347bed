// Package mcp exposes a Supervisor as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CheckpointsURI is the resource listing every checkpoint.
const CheckpointsURI = "wayz://checkpoints"

// Supervisor is the part of *wayz.Supervisor exposed as tools.
type Supervisor interface {
	RunConversation(ctx context.Context, conversationID string, opts ...wayz.RunOption) (*domain.State, error)
	LoadCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, bool, error)
	ListCheckpoints(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error)
	RollbackCheckpoint(ctx context.Context, id string) (*domain.State, bool, error)
	DeleteCheckpoint(ctx context.Context, id string) (bool, error)
}

// ErrNotFound is reported when a tool names an absent checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Tool arguments.
type (
	RunArgs struct {
		ConversationID string `json:"conversation_id"`
		AutoCheckpoint *bool  `json:"auto_checkpoint,omitempty"`
	}
	ListArgs struct {
		ConversationID string `json:"conversation_id,omitempty"`
	}
	CheckpointArgs struct {
		CheckpointID string `json:"checkpoint_id"`
	}
)

// Tool results. Structured results must be JSON objects.
type (
	StateResult struct {
		State *domain.State `json:"state" jsonschema_description:"Conversation state"`
	}
	ListResult struct {
		Checkpoints []domain.CheckpointSummary `json:"checkpoints" jsonschema_description:"Checkpoints, newest first"`
	}
	CheckpointResult struct {
		Checkpoint *domain.Checkpoint `json:"checkpoint" jsonschema_description:"Stored state and metadata"`
	}
	DeleteResult struct {
		Deleted bool `json:"deleted"`
	}
)

// Server wraps the Supervisor and exposes it as an MCP Server.
type Server struct {
	sup       Supervisor
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout when serving stdio.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sup Supervisor, opts ...Option) *Server {
	s := &Server{
		sup:       sup,
		mcpServer: server.NewMCPServer("wayz-mcp", strings.TrimSpace(wayz.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_conversation",
		mcp.WithDescription("Run a conversation through the policy gate and the default workflow. "+
			"A denied or failed run returns the state with its error set."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to run")),
		mcp.WithBoolean("auto_checkpoint", mcp.Description("Save a checkpoint after a successful run (default true)")),
		mcp.WithOutputSchema[StateResult](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("list_checkpoints",
		mcp.WithDescription("List checkpoints, newest first."),
		mcp.WithString("conversation_id", mcp.Description("Only checkpoints of this conversation")),
		mcp.WithOutputSchema[ListResult](),
	), mcp.NewStructuredToolHandler(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("get_checkpoint",
		mcp.WithDescription("Read the full record of a checkpoint."),
		mcp.WithString("checkpoint_id", mcp.Required(), mcp.Description("Checkpoint id")),
		mcp.WithOutputSchema[CheckpointResult](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("rollback_checkpoint",
		mcp.WithDescription("Return the state stored in a checkpoint. The store is not modified."),
		mcp.WithString("checkpoint_id", mcp.Required(), mcp.Description("Checkpoint id")),
		mcp.WithOutputSchema[StateResult](),
	), mcp.NewStructuredToolHandler(s.handleRollback))

	s.mcpServer.AddTool(mcp.NewTool("delete_checkpoint",
		mcp.WithDescription("Delete a checkpoint."),
		mcp.WithString("checkpoint_id", mcp.Required(), mcp.Description("Checkpoint id")),
		mcp.WithOutputSchema[DeleteResult](),
	), mcp.NewStructuredToolHandler(s.handleDelete))
}

func (s *Server) handleRun(ctx context.Context, _ mcp.CallToolRequest, args RunArgs) (StateResult, error) {
	var opts []wayz.RunOption
	if args.AutoCheckpoint != nil {
		opts = append(opts, wayz.WithAutoCheckpoint(*args.AutoCheckpoint))
	}
	state, err := s.sup.RunConversation(ctx, args.ConversationID, opts...)
	if err != nil {
		s.logger.Error("MCP run_conversation failed", "conversation_id", args.ConversationID, "error", err)
		return StateResult{}, fmt.Errorf("run failed: %w", err)
	}
	return StateResult{State: state}, nil
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest, args ListArgs) (ListResult, error) {
	sums, err := s.sup.ListCheckpoints(ctx, args.ConversationID)
	if err != nil {
		return ListResult{}, fmt.Errorf("list failed: %w", err)
	}
	if sums == nil {
		sums = []domain.CheckpointSummary{}
	}
	return ListResult{Checkpoints: sums}, nil
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args CheckpointArgs) (CheckpointResult, error) {
	cp, ok, err := s.sup.LoadCheckpoint(ctx, args.CheckpointID)
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("load failed: %w", err)
	}
	if !ok {
		return CheckpointResult{}, fmt.Errorf("%w: %s", ErrNotFound, args.CheckpointID)
	}
	return CheckpointResult{Checkpoint: cp}, nil
}

func (s *Server) handleRollback(ctx context.Context, _ mcp.CallToolRequest, args CheckpointArgs) (StateResult, error) {
	state, ok, err := s.sup.RollbackCheckpoint(ctx, args.CheckpointID)
	if err != nil {
		return StateResult{}, fmt.Errorf("rollback failed: %w", err)
	}
	if !ok {
		return StateResult{}, fmt.Errorf("%w: %s", ErrNotFound, args.CheckpointID)
	}
	return StateResult{State: state}, nil
}

func (s *Server) handleDelete(ctx context.Context, _ mcp.CallToolRequest, args CheckpointArgs) (DeleteResult, error) {
	ok, err := s.sup.DeleteCheckpoint(ctx, args.CheckpointID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete failed: %w", err)
	}
	if !ok {
		return DeleteResult{}, fmt.Errorf("%w: %s", ErrNotFound, args.CheckpointID)
	}
	return DeleteResult{Deleted: true}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(CheckpointsURI, "Checkpoints",
		mcp.WithResourceDescription("Every stored checkpoint, newest first"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sums, err := s.sup.ListCheckpoints(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		jsonBytes, err := json.Marshal(sums)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      CheckpointsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
