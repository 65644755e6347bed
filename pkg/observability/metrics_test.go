package observability_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: "greeting", Mode: domain.Blocking})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: "greeting", Mode: domain.Blocking})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{Node: "greeting", Outcome: "success", Duration: 20 * time.Millisecond})
	hooks.OnPolicyDecision(ctx, &domain.PolicyEvent{Action: "execute", Allowed: true})
	hooks.OnPolicyDecision(ctx, &domain.PolicyEvent{Action: "execute"})
	hooks.OnPolicyDecision(ctx, &domain.PolicyEvent{Action: "execute", Err: errors.New("down")})
	hooks.OnCheckpointSaved(ctx, &domain.CheckpointEvent{CheckpointID: "c_1"})

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["wayz_node_attempts_total{mode=blocking,node=greeting}"])
	assert.Equal(t, 1.0, got["wayz_node_outcomes_total{node=greeting,outcome=success}"])
	assert.Equal(t, 1.0, got["wayz_policy_decisions_total{action=execute,decision=allow}"])
	assert.Equal(t, 1.0, got["wayz_policy_decisions_total{action=execute,decision=deny}"])
	assert.Equal(t, 1.0, got["wayz_policy_decisions_total{action=execute,decision=error}"])
	assert.Equal(t, 1.0, got["wayz_checkpoints_saved_total{}"])
	assert.Equal(t, 1.0, got["wayz_node_duration_seconds{node=greeting,outcome=success}"], "histogram sample count")
}

// gather flattens counters and histogram sample counts into name{label=value,...} keys.
// Gather sorts labels by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, l := range metric.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			key := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}
