// Package observability defines the Prometheus instrumentation shared by
// both pipelines. All collectors hang off one Metrics value registered on a
// caller-owned registry so tests never fight over global state.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the pipelines emit.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested   prometheus.Counter
	EventsRejected   prometheus.Counter
	EventsProcessed  prometheus.Counter
	EventsRedelivery prometheus.Counter
	BroadcastsSent   prometheus.Counter
	ClientsPruned    prometheus.Counter

	storageReadSeconds   prometheus.Histogram
	storageReadBytes     prometheus.Histogram
	storageCommitSeconds prometheus.Histogram
	storageCommitBytes   prometheus.Histogram
}

// New builds and registers the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "events_ingested_total",
			Help: "Metric events accepted at the ingestion boundary.",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "events_rejected_total",
			Help: "Metric events rejected by schema validation.",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "events_processed_total",
			Help: "Metric events processed and acknowledged by workers.",
		}),
		EventsRedelivery: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "events_redelivered_total",
			Help: "Deliveries with a delivery count above one.",
		}),
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "broadcasts_sent_total",
			Help: "Messages delivered to dashboard connections.",
		}),
		ClientsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsegrid", Name: "clients_pruned_total",
			Help: "Connections removed by heartbeat or write failure.",
		}),
		storageReadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsegrid", Subsystem: "storage", Name: "read_seconds",
			Help:    "Storage read latency.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		storageReadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsegrid", Subsystem: "storage", Name: "read_bytes",
			Help:    "Bytes returned per storage read.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
		storageCommitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsegrid", Subsystem: "storage", Name: "commit_seconds",
			Help:    "Batch commit latency including fsync.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		storageCommitBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsegrid", Subsystem: "storage", Name: "commit_bytes",
			Help:    "Bytes written per committed batch.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}
	reg.MustRegister(
		m.EventsIngested, m.EventsRejected, m.EventsProcessed, m.EventsRedelivery,
		m.BroadcastsSent, m.ClientsPruned,
		m.storageReadSeconds, m.storageReadBytes, m.storageCommitSeconds, m.storageCommitBytes,
	)
	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRead implements the storage metrics hook.
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageReadSeconds.Observe(elapsed.Seconds())
	m.storageReadBytes.Observe(float64(bytes))
}

// ObserveBatchCommit implements the storage metrics hook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, bytes int) {
	m.storageCommitSeconds.Observe(elapsed.Seconds())
	m.storageCommitBytes.Observe(float64(bytes))
}
