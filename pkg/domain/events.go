package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter       EventType = "node_enter"
	EventNodeRetry       EventType = "node_retry"
	EventNodeLeave       EventType = "node_leave"
	EventPolicyDecision  EventType = "policy_decision"
	EventCheckpointSaved EventType = "checkpoint_saved"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

// NodeEvent reports progress of a single node.
type NodeEvent struct {
	EventBase
	Node     string        `json:"node"`
	Mode     Mode          `json:"mode"`
	Attempt  int           `json:"attempt,omitempty"`
	Outcome  string        `json:"outcome,omitempty"` // set on leave
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// PolicyEvent reports a policy gate decision.
type PolicyEvent struct {
	EventBase
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
	Err      error  `json:"-"`
}

// CheckpointEvent reports a persisted checkpoint.
type CheckpointEvent struct {
	EventBase
	CheckpointID string `json:"checkpoint_id"`
}

// LifecycleHooks defines callbacks for observability. Nil hooks are skipped.
type LifecycleHooks struct {
	OnNodeEnter       func(context.Context, *NodeEvent)
	OnNodeRetry       func(context.Context, *NodeEvent)
	OnNodeLeave       func(context.Context, *NodeEvent)
	OnPolicyDecision  func(context.Context, *PolicyEvent)
	OnCheckpointSaved func(context.Context, *CheckpointEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:       chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeRetry:       chain(h.OnNodeRetry, other.OnNodeRetry),
		OnNodeLeave:       chain(h.OnNodeLeave, other.OnNodeLeave),
		OnPolicyDecision:  chain(h.OnPolicyDecision, other.OnPolicyDecision),
		OnCheckpointSaved: chain(h.OnCheckpointSaved, other.OnCheckpointSaved),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
