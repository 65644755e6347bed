package wayz

import (
	"log/slog"

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/aretw0/wayz/pkg/runner"
)

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithLogger sets a custom structured logger for the supervisor and its runner.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithHooks registers observability hooks. Repeated calls merge.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Supervisor) {
		s.hooks = s.hooks.Merge(hooks)
	}
}

// WithRunnerOptions configures the node runner (timeout, retries, workers).
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Supervisor) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// WithDefaultGraph replaces the graph used when a run does not supply one.
func WithDefaultGraph(graph *domain.Graph) Option {
	return func(s *Supervisor) {
		s.graph = graph
	}
}

// WithLocker serializes checkpoint writes across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Supervisor) {
		s.locker = locker
	}
}

// RunOption configures a single RunConversation call.
type RunOption func(*runConfig)

type runConfig struct {
	graph          *domain.Graph
	order          []string
	autoCheckpoint bool
	metadata       map[string]any
}

// WithGraph runs graph instead of the default one. With order, only the named
// nodes run, in that order.
func WithGraph(graph *domain.Graph, order ...string) RunOption {
	return func(c *runConfig) {
		c.graph = graph
		c.order = order
	}
}

// WithAutoCheckpoint controls the checkpoint taken after a successful run.
// It is on by default.
func WithAutoCheckpoint(enabled bool) RunOption {
	return func(c *runConfig) {
		c.autoCheckpoint = enabled
	}
}

// WithMetadata seeds the state metadata of the run.
func WithMetadata(metadata map[string]any) RunOption {
	return func(c *runConfig) {
		c.metadata = metadata
	}
}
