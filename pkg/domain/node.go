package domain

import (
	"context"
	"fmt"
)

// Mode tells the runner how a node body behaves while it waits.
type Mode int

const (
	// Suspending bodies honour their context and give control back while waiting on I/O.
	// The runner calls them directly.
	Suspending Mode = iota
	// Blocking bodies run to completion without yielding. The runner offloads them
	// to its bounded worker pool.
	Blocking
)

func (m Mode) String() string {
	switch m {
	case Suspending:
		return "suspending"
	case Blocking:
		return "blocking"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// NodeFunc is the body of a node. It receives the state for the current attempt
// and returns the state to carry forward.
type NodeFunc func(ctx context.Context, state *State) (*State, error)

// Node is a unit of work tagged with its execution mode.
type Node struct {
	Mode Mode
	Fn   NodeFunc
}

// SuspendingNode tags fn as a suspending node.
func SuspendingNode(fn NodeFunc) Node {
	return Node{Mode: Suspending, Fn: fn}
}

// BlockingNode tags fn as a blocking node.
func BlockingNode(fn NodeFunc) Node {
	return Node{Mode: Blocking, Fn: fn}
}

// ConditionFunc decides which branch of a conditional runs.
type ConditionFunc func(ctx context.Context, state *State) (bool, error)

// Condition is a branch predicate tagged with its execution mode.
type Condition struct {
	Mode Mode
	Fn   ConditionFunc
}

// SuspendingCondition tags fn as a suspending condition.
func SuspendingCondition(fn ConditionFunc) Condition {
	return Condition{Mode: Suspending, Fn: fn}
}

// BlockingCondition tags fn as a blocking condition.
func BlockingCondition(fn ConditionFunc) Condition {
	return Condition{Mode: Blocking, Fn: fn}
}

// Graph is a named set of nodes that remembers registration order.
type Graph struct {
	nodes map[string]Node
	order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// Add registers a node under name. Re-registering a name replaces the node
// but keeps its original position.
func (g *Graph) Add(name string, node Node) *Graph {
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
	}
	g.nodes[name] = node
	return g
}

// Node looks up a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	n, ok := g.nodes[name]
	return n, ok
}

// Order returns node names in registration order.
func (g *Graph) Order() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.order...)
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}
