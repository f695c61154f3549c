// Package metrics exposes Prometheus collectors for the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsProcessed  *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsRequeued   *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	QueueDepth     *prometheus.GaugeVec
	UploadsTotal   prometheus.Counter
	PipelinesTotal prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileforge",
			Name:      "jobs_processed_total",
			Help:      "Jobs that reached succeeded, by action kind.",
		}, []string{"kind"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileforge",
			Name:      "jobs_failed_total",
			Help:      "Jobs that reached failed, by action kind.",
		}, []string{"kind"}),
		JobsRequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileforge",
			Name:      "jobs_requeued_total",
			Help:      "Transient failures that sent a job back to its queue.",
		}, []string{"kind"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fileforge",
			Name:      "job_duration_seconds",
			Help:      "Processor execution time, by action kind.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fileforge",
			Name:      "queue_depth",
			Help:      "Queued jobs per worker family.",
		}, []string{"family"}),
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fileforge",
			Name:      "uploads_total",
			Help:      "Files registered through the upload endpoint.",
		}),
		PipelinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fileforge",
			Name:      "pipelines_total",
			Help:      "Pipelines accepted for processing.",
		}),
	}
	registry.MustRegister(
		m.JobsProcessed, m.JobsFailed, m.JobsRequeued, m.JobDuration,
		m.QueueDepth, m.UploadsTotal, m.PipelinesTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
