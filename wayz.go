package wayz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/nodes"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/aretw0/wayz/pkg/runner"
	"github.com/aretw0/wayz/pkg/session"
	"github.com/google/uuid"
)

// Policy gate constants.
const (
	ActionExecute  = "execute"
	resourcePrefix = "conversation/"

	// DeniedMessage is the state error of a run refused by the policy gate.
	DeniedMessage = "Policy denied conversation execution"
)

var (
	// ErrEnforcerRequired is returned by New without a policy enforcer.
	ErrEnforcerRequired = errors.New("policy enforcer is required")
	// ErrStoreRequired is returned by New without a checkpoint store.
	ErrStoreRequired = errors.New("checkpoint store is required")
	// ErrConversationIDRequired is returned for runs without an id.
	ErrConversationIDRequired = errors.New("conversation id is required")
	// ErrGraphRequired is returned for runs whose graph is nil or has nothing to run.
	ErrGraphRequired = errors.New("workflow graph is required")
)

// Supervisor runs conversations behind a policy gate and checkpoints their results.
// It is safe for concurrent use; each run owns its state.
type Supervisor struct {
	enforcer ports.PolicyEnforcer
	store    *session.Manager
	runner   *runner.Runner
	graph    *domain.Graph

	locker     ports.DistributedLocker
	runnerOpts []runner.Option
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// New creates a Supervisor. Both enforcer and store are required; there is no
// implicit policy. Use policy.DenyAll{} for a fail-closed local setup.
func New(enforcer ports.PolicyEnforcer, store ports.CheckpointStore, opts ...Option) (*Supervisor, error) {
	if enforcer == nil {
		return nil, ErrEnforcerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	s := &Supervisor{
		enforcer: enforcer,
		graph:    nodes.DefaultGraph(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	runnerOpts := append([]runner.Option{runner.WithLogger(s.logger)}, s.runnerOpts...)
	runnerOpts = append(runnerOpts, runner.WithHooks(s.hooks))
	s.runner = runner.New(runnerOpts...)

	managerOpts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(s.locker))
	}
	s.store = session.NewManager(store, managerOpts...)

	return s, nil
}

// Runner exposes the node runner, e.g. for RunConditional inside custom nodes.
func (s *Supervisor) Runner() *runner.Runner {
	return s.runner
}

// Store returns the checkpoint store the supervisor writes through.
func (s *Supervisor) Store() ports.CheckpointStore {
	return s.store
}

// RunConversation executes one conversation and returns its final state.
//
// A policy deny yields a state carrying "Policy denied conversation execution"
// and a nil error; no node runs and nothing is saved. Node failures are recorded
// in the state, not returned. The error is reserved for failures outside the
// workflow: an enforcer that could not decide, or a checkpoint that could not
// be written.
func (s *Supervisor) RunConversation(ctx context.Context, conversationID string, opts ...RunOption) (*domain.State, error) {
	if conversationID == "" {
		return nil, ErrConversationIDRequired
	}
	cfg := runConfig{graph: s.graph, autoCheckpoint: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.graph == nil || (cfg.graph.Len() == 0 && len(cfg.order) == 0) {
		return nil, ErrGraphRequired
	}

	state := domain.NewState(conversationID)
	for k, v := range cfg.metadata {
		state.Metadata[k] = v
	}
	log := s.logger.With("conversation_id", conversationID)

	allowed, err := s.EnforcePolicy(ctx, ActionExecute, resourcePrefix+conversationID, map[string]any{
		"conversation_id": conversationID,
	})
	if err != nil {
		state.Fail(DeniedMessage)
		return state, fmt.Errorf("policy check for conversation %s: %w", conversationID, err)
	}
	if !allowed {
		state.Fail(DeniedMessage)
		log.Info("conversation denied by policy")
		return state, nil
	}

	start := time.Now()
	out := s.runner.RunGraph(ctx, cfg.graph, state, cfg.order...)
	if !out.OK() {
		log.Warn("conversation stopped", "step", state.CurrentStep, "error", state.Error, "duration", time.Since(start))
		return state, nil
	}
	log.Info("conversation completed", "messages", len(state.Messages), "duration", time.Since(start))

	if cfg.autoCheckpoint && !state.Failed() {
		id, err := s.SaveCheckpoint(ctx, state, "")
		if err != nil {
			return state, err
		}
		state.AddCheckpoint(id)
	}
	return state, nil
}

// EnforcePolicy asks the enforcer and reports the decision to hooks.
func (s *Supervisor) EnforcePolicy(ctx context.Context, action, resource string, input map[string]any) (bool, error) {
	allowed, err := s.enforcer.Enforce(ctx, action, resource, input)
	if hook := s.hooks.OnPolicyDecision; hook != nil {
		hook(ctx, &domain.PolicyEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPolicyDecision, ConversationID: conversationOf(resource)},
			Action:    action,
			Resource:  resource,
			Allowed:   allowed && err == nil,
			Err:       err,
		})
	}
	if err != nil {
		s.logger.Warn("policy decision failed", "action", action, "resource", resource, "error", err)
		return false, err
	}
	s.logger.Debug("policy decision", "action", action, "resource", resource, "allowed", allowed)
	return allowed, nil
}

func conversationOf(resource string) string {
	return strings.TrimPrefix(resource, resourcePrefix)
}

// NewCheckpointID returns "<conversation>_<8 hex chars>".
func NewCheckpointID(conversationID string) string {
	return conversationID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SaveCheckpoint persists state under id, generating one when id is empty, and
// returns the id. The state itself is not modified.
func (s *Supervisor) SaveCheckpoint(ctx context.Context, state *domain.State, id string) (string, error) {
	if id == "" {
		id = NewCheckpointID(state.ConversationID)
	}
	metadata := map[string]any{
		"conversation_id": state.ConversationID,
		"current_step":    state.CurrentStep,
		"message_count":   len(state.Messages),
	}
	if err := s.store.Save(ctx, id, state, metadata); err != nil {
		return "", fmt.Errorf("failed to save checkpoint %s: %w", id, err)
	}

	if hook := s.hooks.OnCheckpointSaved; hook != nil {
		hook(ctx, &domain.CheckpointEvent{
			EventBase:    domain.EventBase{Timestamp: time.Now(), Type: domain.EventCheckpointSaved, ConversationID: state.ConversationID},
			CheckpointID: id,
		})
	}
	s.logger.Info("checkpoint saved", "checkpoint_id", id, "conversation_id", state.ConversationID)
	return id, nil
}

// LoadCheckpoint returns the full checkpoint record.
func (s *Supervisor) LoadCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	return s.store.Load(ctx, id)
}

// ListCheckpoints lists checkpoints newest first, optionally for one conversation.
func (s *Supervisor) ListCheckpoints(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error) {
	return s.store.List(ctx, conversationID)
}

// RollbackCheckpoint returns the state stored in a checkpoint. The store is unchanged.
func (s *Supervisor) RollbackCheckpoint(ctx context.Context, id string) (*domain.State, bool, error) {
	state, ok, err := s.store.Rollback(ctx, id)
	if err == nil && ok {
		s.logger.Info("rolled back to checkpoint", "checkpoint_id", id, "step", state.CurrentStep)
	}
	return state, ok, err
}

// DeleteCheckpoint removes a checkpoint and reports whether it existed.
func (s *Supervisor) DeleteCheckpoint(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// CleanupCheckpoints removes checkpoints older than maxAge.
func (s *Supervisor) CleanupCheckpoints(ctx context.Context, maxAge time.Duration) (int, error) {
	return s.store.Cleanup(ctx, maxAge)
}

// Close releases the enforcer and the store when they hold resources.
func (s *Supervisor) Close() error {
	var errs []error
	if c, ok := s.enforcer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.store.Store().(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
