// Package metrics exposes Prometheus collectors for external script runs and
// workflow outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anvil"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	scriptRuns      *prometheus.CounterVec
	scriptDuration  *prometheus.HistogramVec
	workflowResults *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scriptRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_runs_total",
			Help:      "External script invocations by command and outcome.",
		}, []string{"command", "outcome"}),
		scriptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Wall-clock duration of external script invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"command"}),
		workflowResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_results_total",
			Help:      "Workflow outcomes by workflow and result.",
		}, []string{"workflow", "outcome"}),
	}

	reg.MustRegister(m.scriptRuns, m.scriptDuration, m.workflowResults)
	return m
}

// ObserveScript records one script invocation.
func (m *Metrics) ObserveScript(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.scriptRuns.WithLabelValues(command, outcome).Inc()
	m.scriptDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveWorkflow records one workflow outcome.
func (m *Metrics) ObserveWorkflow(workflow, outcome string) {
	if m == nil {
		return
	}
	m.workflowResults.WithLabelValues(workflow, outcome).Inc()
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
