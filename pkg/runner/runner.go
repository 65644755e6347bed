package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	"golang.org/x/sync/semaphore"
)

var errConversationChanged = errors.New("node changed conversation_id")

// Runner executes nodes under timeout and retry, and sequences them into graphs.
// A Runner is safe for concurrent use by independent runs; blocking nodes of all
// runs share one worker pool.
type Runner struct {
	config Config
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	pool   *semaphore.Weighted
}

// New creates a Runner. Unset settings fall back to DefaultConfig.
func New(opts ...Option) *Runner {
	r := &Runner{
		config: DefaultConfig(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.config = r.config.normalized()
	r.pool = semaphore.NewWeighted(int64(r.config.Workers))
	return r
}

// Config returns the effective settings.
func (r *Runner) Config() Config {
	return r.config
}

// RunNode executes node against state under the configured timeout and retry policy.
//
// state.CurrentStep is set to name before the first attempt. Every attempt works on
// a clone of state; only a successful attempt's result is copied back into state.
// On failure state.Error is set and the returned Outcome carries the cause.
//
// A timeout stops waiting for a blocking node but cannot interrupt it.
func (r *Runner) RunNode(ctx context.Context, node domain.Node, state *domain.State, name string) Outcome {
	state.CurrentStep = name
	log := r.logger.With("node", name, "mode", node.Mode.String(), "conversation_id", state.ConversationID)

	var (
		lastErr  error
		timedOut bool
		attempt  int
		started  = time.Now()
	)

	for attempt = 1; attempt <= r.config.MaxRetries; attempt++ {
		r.emitNode(ctx, r.hooks.OnNodeEnter, domain.EventNodeEnter, state, name, node.Mode, attempt, "", 0, nil)

		next, err := r.attempt(ctx, node, state)
		if err == nil {
			*state = *next
			out := Outcome{Kind: Success, Node: name, State: state, Attempts: attempt}
			r.emitNode(ctx, r.hooks.OnNodeLeave, domain.EventNodeLeave, state, name, node.Mode, attempt, out.Kind.String(), time.Since(started), nil)
			log.Debug("node completed", "attempts", attempt)
			return out
		}

		lastErr = err
		timedOut = ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
		log.Warn("node attempt failed", "attempt", attempt, "max_retries", r.config.MaxRetries, "timed_out", timedOut, "error", err)

		if attempt == r.config.MaxRetries {
			break
		}
		if werr := r.wait(ctx); werr != nil {
			lastErr, timedOut = werr, false
			break
		}
		r.emitNode(ctx, r.hooks.OnNodeRetry, domain.EventNodeRetry, state, name, node.Mode, attempt, "", 0, err)
	}

	out := Outcome{Kind: Failed, Node: name, State: state, Cause: lastErr, Attempts: attempt}
	if timedOut {
		out.Kind = TimedOut
		state.Fail(fmt.Sprintf("Node '%s' timed out after %s", name, r.config.Timeout))
	} else {
		state.Fail(fmt.Sprintf("Node '%s' failed: %v", name, lastErr))
	}
	r.emitNode(ctx, r.hooks.OnNodeLeave, domain.EventNodeLeave, state, name, node.Mode, attempt, out.Kind.String(), time.Since(started), out.Err())
	log.Error("node gave up", "outcome", out.Kind.String(), "error", lastErr)
	return out
}

// attempt runs one try on a clone of state under its own deadline.
func (r *Runner) attempt(ctx context.Context, node domain.Node, state *domain.State) (*domain.State, error) {
	if node.Fn == nil {
		return nil, errors.New("node has no body")
	}
	actx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	work := state.Clone()
	next, err := invoke(actx, r.pool, node.Mode == domain.Blocking, func(c context.Context) (*domain.State, error) {
		return node.Fn(c, work)
	})
	if err == nil && actx.Err() != nil {
		// A suspending body that ignored its context and returned late.
		err = actx.Err()
	}
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = work
	}
	if next.ConversationID != state.ConversationID {
		return nil, errConversationChanged
	}
	return next, nil
}

// wait sleeps for the retry delay unless ctx ends first.
func (r *Runner) wait(ctx context.Context) error {
	if r.config.RetryDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.config.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunGraph runs the named nodes of graph in sequence, stopping at the first failure.
// With no names the graph's registration order is used. The returned Outcome holds
// the best-effort final state; completed steps are never rolled back.
func (r *Runner) RunGraph(ctx context.Context, graph *domain.Graph, state *domain.State, order ...string) Outcome {
	if len(order) == 0 {
		order = graph.Order()
	}

	last := Outcome{Kind: Success, State: state}
	for _, name := range order {
		if state.Failed() {
			return Outcome{Kind: Failed, Node: state.CurrentStep, State: state, Cause: errors.New(state.Error)}
		}

		node, ok := graph.Node(name)
		if !ok {
			state.Fail(fmt.Sprintf("Node '%s' not found in graph", name))
			r.logger.Error("unknown node", "node", name, "conversation_id", state.ConversationID)
			return Outcome{Kind: Failed, Node: name, State: state, Cause: domain.ErrUnknownNode}
		}

		last = r.RunNode(ctx, node, state, name)
		if !last.OK() {
			return last
		}
	}
	last.State = state
	return last
}

// RunConditional evaluates cond once and runs exactly one branch, labelled
// name_true or name_false. A failing condition fails the conditional without
// running either branch.
func (r *Runner) RunConditional(ctx context.Context, cond domain.Condition, trueNode, falseNode domain.Node, state *domain.State, name string) Outcome {
	ok, err := r.evaluate(ctx, cond, state)
	if err != nil {
		state.Fail(fmt.Sprintf("Conditional '%s' failed: %v", name, err))
		r.logger.Error("condition failed", "conditional", name, "conversation_id", state.ConversationID, "error", err)
		return Outcome{
			Kind:     Failed,
			Node:     name,
			State:    state,
			Cause:    fmt.Errorf("%w: %w", domain.ErrConditionFailed, err),
			Attempts: 1,
		}
	}

	if ok {
		return r.RunNode(ctx, trueNode, state, name+"_true")
	}
	return r.RunNode(ctx, falseNode, state, name+"_false")
}

func (r *Runner) evaluate(ctx context.Context, cond domain.Condition, state *domain.State) (bool, error) {
	if cond.Fn == nil {
		return false, errors.New("condition has no body")
	}
	cctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	snapshot := state.Clone()
	ok, err := invoke(cctx, r.pool, cond.Mode == domain.Blocking, func(c context.Context) (bool, error) {
		return cond.Fn(c, snapshot)
	})
	if err == nil && cctx.Err() != nil {
		err = cctx.Err()
	}
	return ok, err
}

func (r *Runner) emitNode(ctx context.Context, hook func(context.Context, *domain.NodeEvent), typ domain.EventType, state *domain.State, name string, mode domain.Mode, attempt int, outcome string, d time.Duration, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, ConversationID: state.ConversationID},
		Node:      name,
		Mode:      mode,
		Attempt:   attempt,
		Outcome:   outcome,
		Duration:  d,
		Err:       err,
	})
}
