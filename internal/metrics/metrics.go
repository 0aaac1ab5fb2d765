// Package metrics exposes pipeline counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Probe counters
	ProbesTotal    atomic.Uint64
	ProbeFailures  atomic.Uint64
	SnapshotsSaved atomic.Uint64

	// Retention counters
	SnapshotsDeleted atomic.Uint64
	ArtifactsDeleted atomic.Uint64

	// API counters
	AnalyzeRequests atomic.Uint64
	AnalyzeFailures atomic.Uint64

	// Per-webcam state
	crowdCount *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		crowdCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coastwatch_crowd_count",
				Help: "Most recent estimated crowd count per webcam",
			},
			[]string{"webcam"},
		),
	}

	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"coastwatch_probes_total", "Total webcam probe attempts", &m.ProbesTotal},
		{"coastwatch_probe_failures_total", "Total failed webcam probes", &m.ProbeFailures},
		{"coastwatch_snapshots_saved_total", "Total snapshots persisted", &m.SnapshotsSaved},
		{"coastwatch_retention_snapshots_deleted_total", "Total snapshot rows removed by retention", &m.SnapshotsDeleted},
		{"coastwatch_retention_artifacts_deleted_total", "Total media files removed by retention", &m.ArtifactsDeleted},
		{"coastwatch_analyze_requests_total", "Total ad hoc analyze API requests", &m.AnalyzeRequests},
		{"coastwatch_analyze_failures_total", "Total failed analyze API requests", &m.AnalyzeFailures},
	}

	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(m.crowdCount)
}

// SetCrowdCount records the latest estimate for a webcam.
func (m *Metrics) SetCrowdCount(slug string, count int) {
	m.crowdCount.WithLabelValues(slug).Set(float64(count))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
