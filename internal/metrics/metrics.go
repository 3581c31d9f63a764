package metrics

import (
	"context"
	"fmt"

	"github.com/masgolf/assetsync/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const job = "assetsync"

// Metrics holds the batch metrics of one command invocation.
type Metrics struct {
	registry *prometheus.Registry

	UnitsTotal  *prometheus.CounterVec // assetsync_units_total{operation,outcome}
	LastRun     *prometheus.GaugeVec   // assetsync_last_run_timestamp_seconds{operation}
	RunDuration *prometheus.GaugeVec   // assetsync_run_duration_seconds{operation}
	RunCounters *prometheus.GaugeVec   // assetsync_run_counter{operation,name}
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,

		UnitsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "assetsync_units_total",
			Help: "Batch units by operation and outcome",
		}, []string{"operation", "outcome"}),

		LastRun: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "assetsync_last_run_timestamp_seconds",
			Help: "Unix time the operation last finished",
		}, []string{"operation"}),

		RunDuration: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "assetsync_run_duration_seconds",
			Help: "Wall time of the last run of the operation",
		}, []string{"operation"}),

		RunCounters: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "assetsync_run_counter",
			Help: "Operation-specific counters of the last run (groups, ghosts, orphans, ...)",
		}, []string{"operation", "name"}),
	}
}

// Observe records a finished batch report.
func (m *Metrics) Observe(r *model.BatchReport) {
	op := r.Operation
	m.UnitsTotal.WithLabelValues(op, "succeeded").Add(float64(r.Succeeded))
	m.UnitsTotal.WithLabelValues(op, "failed").Add(float64(r.Failed))
	m.UnitsTotal.WithLabelValues(op, "skipped").Add(float64(r.Skipped))
	for name, v := range r.Counters {
		m.RunCounters.WithLabelValues(op, name).Set(float64(v))
	}
	m.RunDuration.WithLabelValues(op).Set(r.Duration.Seconds())
	m.LastRun.WithLabelValues(op).SetToCurrentTime()
}

// Push sends every collected metric to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, gatewayURL string) error {
	err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
