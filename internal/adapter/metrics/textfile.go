// Package metrics exports per-run counters in the Prometheus text format
// for node_exporter's textfile collector.
package metrics

import (
	"os"
	"path/filepath"

	"bytemomo/autopen/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run holds the gauges describing the last run.
type Run struct {
	registry *prometheus.Registry

	Status      *prometheus.GaugeVec
	Findings    prometheus.Gauge
	ToolErrors  prometheus.Gauge
	Expanded    prometheus.Gauge
	Alive       prometheus.Gauge
	Skipped     *prometheus.GaugeVec
	EmptyReason *prometheus.GaugeVec
}

// NewRun creates the gauges on a private registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Run{
		registry: reg,
		Status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autopen_run_status",
			Help: "1 when the run executed tools and merged findings, 0 otherwise",
		}, []string{"run_id"}),
		Findings: f.NewGauge(prometheus.GaugeOpts{
			Name: "autopen_findings_total",
			Help: "Findings merged in the last run",
		}),
		ToolErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "autopen_tools_errors",
			Help: "Tool steps that failed in the last run",
		}),
		Expanded: f.NewGauge(prometheus.GaugeOpts{
			Name: "autopen_targets_expanded",
			Help: "Targets after expansion in the last run",
		}),
		Alive: f.NewGauge(prometheus.GaugeOpts{
			Name: "autopen_targets_alive",
			Help: "Responsive targets in the last run",
		}),
		Skipped: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autopen_extract_skipped",
			Help: "Items skipped during finding extraction, by kind",
		}, []string{"kind"}),
		EmptyReason: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autopen_run_empty",
			Help: "Set when the run stopped before tool execution",
		}, []string{"run_id", "reason"}),
	}
}

// Observe loads a run report into the gauges.
func (m *Run) Observe(r *domain.RunReport) {
	status := 0.0
	if r.Status == domain.RunCompleted {
		status = 1
	}
	m.Status.WithLabelValues(r.RunID).Set(status)
	m.Findings.Set(float64(r.Findings))
	m.ToolErrors.Set(float64(len(r.StepErrors)))

	if r.Aggregation != nil {
		m.Expanded.Set(float64(len(r.Aggregation.Expanded)))
		m.Alive.Set(float64(len(r.Aggregation.Alive)))
	}
	for kind, n := range r.Skipped {
		m.Skipped.WithLabelValues(kind).Set(float64(n))
	}
	if r.EmptyReason != domain.EmptyNone {
		m.EmptyReason.WithLabelValues(r.RunID, string(r.EmptyReason)).Set(1)
	}
}

// WriteTextfile atomically replaces path with the current gauge values.
func (m *Run) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Export observes r and writes it to path in one call.
func Export(path string, r *domain.RunReport) error {
	m := NewRun()
	m.Observe(r)
	return m.WriteTextfile(path)
}
