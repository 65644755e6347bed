package runner

import (
	"github.com/aretw0/wayz/pkg/domain"
)

// Kind classifies how a node run ended.
type Kind int

const (
	Success Kind = iota
	TimedOut
	Failed
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case TimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Outcome is the result of running a node, a conditional or a graph.
// State is always the best-effort state after the run, even on failure.
type Outcome struct {
	Kind     Kind
	Node     string
	State    *domain.State
	Cause    error
	Attempts int
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Err returns nil on success, or a *domain.NodeError describing the failure.
func (o Outcome) Err() error {
	if o.Kind == Success {
		return nil
	}
	kind := domain.ErrNodeFailed
	if o.Kind == TimedOut {
		kind = domain.ErrNodeTimedOut
	}
	return &domain.NodeError{Node: o.Node, Kind: kind, Cause: o.Cause, Attempts: o.Attempts}
}
