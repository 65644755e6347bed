package observability

import (
	"context"

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	NodeAttempts     *prometheus.CounterVec
	NodeDuration     *prometheus.HistogramVec
	NodeOutcomes     *prometheus.CounterVec
	PolicyDecisions  *prometheus.CounterVec
	CheckpointsSaved prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayz_node_attempts_total",
				Help: "Node attempts started, including retries.",
			},
			[]string{"node", "mode"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayz_node_duration_seconds",
				Help:    "Wall time of a node run across all its attempts.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node", "outcome"},
		),
		NodeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayz_node_outcomes_total",
				Help: "Final node outcomes.",
			},
			[]string{"node", "outcome"},
		),
		PolicyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayz_policy_decisions_total",
				Help: "Policy gate decisions. decision is allow, deny or error.",
			},
			[]string{"action", "decision"},
		),
		CheckpointsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wayz_checkpoints_saved_total",
				Help: "Checkpoints persisted by the supervisor.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.NodeAttempts, m.NodeDuration, m.NodeOutcomes, m.PolicyDecisions, m.CheckpointsSaved} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeAttempts.WithLabelValues(e.Node, e.Mode.String()).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeOutcomes.WithLabelValues(e.Node, e.Outcome).Inc()
			m.NodeDuration.WithLabelValues(e.Node, e.Outcome).Observe(e.Duration.Seconds())
		},
		OnPolicyDecision: func(_ context.Context, e *domain.PolicyEvent) {
			decision := "deny"
			switch {
			case e.Err != nil:
				decision = "error"
			case e.Allowed:
				decision = "allow"
			}
			m.PolicyDecisions.WithLabelValues(e.Action, decision).Inc()
		},
		OnCheckpointSaved: func(context.Context, *domain.CheckpointEvent) {
			m.CheckpointsSaved.Inc()
		},
	}
}
