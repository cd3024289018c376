// Package metrics exposes poll cycle counters and gauges for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbweber/vmwatch/internal/reconcile"
)

const namespace = "vmwatch"

// Poll results used as the result label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	changes        *prometheus.CounterVec
	entities       prometheus.Gauge
	monitored      prometheus.Gauge
	pollDuration   prometheus.Histogram
	backupFailures prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles run, by result.",
		}, []string{"result"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Changes detected by reconciliation, by kind.",
		}, []string{"kind"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Entities in the persisted set after the last successful poll.",
		}),
		monitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_entities",
			Help:      "Entities with monitored=yes after the last successful poll.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		backupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_failures_total",
			Help:      "Snapshot backup uploads that failed.",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.changes,
		m.entities,
		m.monitored,
		m.pollDuration,
		m.backupFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Expose zero values before the first poll
	m.polls.WithLabelValues(ResultSuccess)
	m.polls.WithLabelValues(ResultError)
	for _, k := range []reconcile.ChangeKind{reconcile.KindAdded, reconcile.KindRemoved, reconcile.KindModified} {
		m.changes.WithLabelValues(string(k))
	}

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePoll records one poll cycle.
func (m *Metrics) ObservePoll(result string, d time.Duration) {
	m.polls.WithLabelValues(result).Inc()
	m.pollDuration.Observe(d.Seconds())
}

// ObserveChanges counts changes by kind.
func (m *Metrics) ObserveChanges(changes []reconcile.Change) {
	for _, c := range changes {
		m.changes.WithLabelValues(string(c.Kind)).Inc()
	}
}

// SetEntities sets the entity gauges.
func (m *Metrics) SetEntities(total, monitored int) {
	m.entities.Set(float64(total))
	m.monitored.Set(float64(monitored))
}

// BackupFailed counts one failed backup upload.
func (m *Metrics) BackupFailed() {
	m.backupFailures.Inc()
}
