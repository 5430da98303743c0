// Package observability exports pipeline metrics to Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fogbridge/fogbridge/domain/ports"
)

const namespace = "fogbridge"

// PromMetrics implements ports.Metrics on its own registry, so several
// bridges (or tests) can coexist in one process.
type PromMetrics struct {
	registry *prometheus.Registry

	received    prometheus.Counter
	processed   prometheus.Counter
	passthrough prometheus.Counter
	dropped     *prometheus.CounterVec
	guestLogs   prometheus.Counter
	publishErrs prometheus.Counter
	persistErrs prometheus.Counter
	filterTime  prometheus.Histogram
	queueDepth  prometheus.Gauge
}

var _ ports.Metrics = (*PromMetrics)(nil)

// NewPromMetrics creates and registers the bridge collectors.
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages accepted from the transport.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_processed_total",
			Help:      "Readings filtered and handed to the publisher.",
		}),
		passthrough: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passthrough_total",
			Help:      "Inbound messages logged as passthrough text.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Messages dropped, by the pipeline stage that failed.",
		}, []string{"stage"}),
		guestLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_logs_total",
			Help:      "Diagnostics emitted by the sandboxed filter.",
		}),
		publishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Records that could not be republished.",
		}),
		persistErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Record appends that failed, summed over stores.",
		}),
		filterTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_duration_seconds",
			Help:      "Wall time of one filter_value call, including lock wait.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Messages waiting in the ingestion queue.",
		}),
	}

	m.registry.MustRegister(
		m.received, m.processed, m.passthrough, m.dropped, m.guestLogs,
		m.publishErrs, m.persistErrs, m.filterTime, m.queueDepth,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *PromMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *PromMetrics) MessageReceived()     { m.received.Inc() }
func (m *PromMetrics) ReadingProcessed()    { m.processed.Inc() }
func (m *PromMetrics) Passthrough()         { m.passthrough.Inc() }
func (m *PromMetrics) Dropped(stage string) { m.dropped.WithLabelValues(stage).Inc() }
func (m *PromMetrics) GuestLog()            { m.guestLogs.Inc() }
func (m *PromMetrics) PublishError()        { m.publishErrs.Inc() }
func (m *PromMetrics) PersistError()        { m.persistErrs.Inc() }

func (m *PromMetrics) ObserveFilter(d time.Duration) {
	m.filterTime.Observe(d.Seconds())
}

func (m *PromMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
