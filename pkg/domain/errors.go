package domain

import (
	"errors"
	"fmt"
)

// Run failure kinds.
var (
	// ErrPolicyDenied is recorded when the policy gate refuses a run. No node executes.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrNodeTimedOut is the kind of a node whose final attempt exceeded its deadline.
	ErrNodeTimedOut = errors.New("node timed out")
	// ErrNodeFailed is the kind of a node whose final attempt returned an error.
	ErrNodeFailed = errors.New("node failed")
	// ErrUnknownNode is returned when the run order names a node absent from the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrConditionFailed is returned when a conditional predicate itself fails.
	ErrConditionFailed = errors.New("condition failed")
)

// Policy and storage errors.
var (
	// ErrPolicyUnavailable wraps transport failures of a remote policy decision point.
	ErrPolicyUnavailable = errors.New("policy service unavailable")
	// ErrInvalidCheckpointID is returned for ids that cannot name a checkpoint.
	ErrInvalidCheckpointID = errors.New("invalid checkpoint id")
)

// NodeError describes why a node run stopped.
// It unwraps to both its Kind and its Cause.
type NodeError struct {
	Node     string
	Kind     error
	Cause    error
	Attempts int
}

func (e *NodeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Node, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Node, e.Kind, e.Cause)
}

func (e *NodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
