// Package nodes provides ready-made nodes for demos and tests.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
)

// Sender is the agent name used on every message these nodes emit.
const Sender = "wayz"

// Names of the nodes in the default graph.
const (
	StepGreeting   = "greeting"
	StepProcessing = "processing"
	StepFinalize   = "finalize"

	// StepCompleted is the CurrentStep left behind by Finalize.
	StepCompleted = "completed"
)

// ErrMissingConversationID is returned by Validate.
var ErrMissingConversationID = errors.New("missing conversation_id")

func text(s string) map[string]any {
	return map[string]any{"text": s}
}

// Greeting announces the start of the conversation.
func Greeting() domain.Node {
	return domain.BlockingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		s.AddMessage(domain.NewMessage(domain.PerformativeInform, Sender, "user",
			text(fmt.Sprintf("Hello! Starting conversation %s", s.ConversationID)), s.ConversationID))
		return s, nil
	})
}

// ProcessFunc transforms the text of the latest message.
type ProcessFunc func(string) string

// DefaultProcess prefixes the input with "Processed: ".
func DefaultProcess(in string) string {
	return "Processed: " + in
}

// Processing replies to the latest message when it carries text.
// A nil fn uses DefaultProcess.
func Processing(fn ProcessFunc) domain.Node {
	if fn == nil {
		fn = DefaultProcess
	}
	return domain.BlockingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		if len(s.Messages) == 0 {
			return s, nil
		}
		last := s.Messages[len(s.Messages)-1]
		in, ok := last.Text()
		if !ok {
			return s, nil
		}
		receiver := last.Sender
		if receiver == "" {
			receiver = "user"
		}
		reply := domain.NewMessage(domain.PerformativeInform, Sender, receiver, text(fn(in)), s.ConversationID)
		reply.ReplyTo = last.MessageID
		s.AddMessage(reply)
		return s, nil
	})
}

// Finalize says goodbye and marks the conversation completed.
func Finalize() domain.Node {
	return domain.BlockingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		s.AddMessage(domain.NewMessage(domain.PerformativeInform, Sender, "user",
			text("Conversation complete. Goodbye!"), s.ConversationID))
		s.CurrentStep = StepCompleted
		return s, nil
	})
}

// Validate checks the state after a short simulated remote call.
func Validate() domain.Node {
	return domain.SuspendingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		t := time.NewTimer(100 * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		if s.ConversationID == "" {
			return nil, ErrMissingConversationID
		}
		return s, nil
	})
}

// ErrorHandler reports a recorded error to the user as a failure message.
// It is a no-op on a healthy state.
func ErrorHandler() domain.Node {
	return domain.BlockingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		if s.Error != "" {
			s.AddMessage(domain.NewMessage(domain.PerformativeFailure, Sender, "user",
				map[string]any{"error": s.Error}, s.ConversationID))
		}
		return s, nil
	})
}

// CheckpointFunc persists the state and returns the checkpoint id.
type CheckpointFunc func(ctx context.Context, s *domain.State) (string, error)

// Checkpoint saves the state mid-run through fn and records the id.
func Checkpoint(fn CheckpointFunc) domain.Node {
	return domain.SuspendingNode(func(ctx context.Context, s *domain.State) (*domain.State, error) {
		id, err := fn(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
		s.AddCheckpoint(id)
		return s, nil
	})
}

// DefaultGraph is greeting, processing, finalize.
func DefaultGraph() *domain.Graph {
	return domain.NewGraph().
		Add(StepGreeting, Greeting()).
		Add(StepProcessing, Processing(nil)).
		Add(StepFinalize, Finalize())
}
