/*
Package observability exports supervisor activity as Prometheus metrics.

Metrics are driven entirely by domain.LifecycleHooks, so the runner and the
supervisor stay unaware of Prometheus:

	m, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	sup, err := wayz.New(enforcer, store, wayz.WithHooks(m.Hooks()))
*/
package observability
