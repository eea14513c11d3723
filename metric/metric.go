// Package metric defines the platform-level Prometheus metrics for the
// federation core and the HTTP handler that exposes them.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all federation-level metrics (not store-specific)
type Metrics struct {
	// Inbox pipeline metrics
	InboxReceived    *prometheus.CounterVec
	InboxProcessed   *prometheus.CounterVec
	InboxRejected    *prometheus.CounterVec
	InboxDuration    *prometheus.HistogramVec
	InboxDefederated prometheus.Counter

	// Delivery metrics
	DeliverySent     *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram

	// Queue metrics
	JobsRetried     *prometheus.CounterVec
	JobsDeadLetter  *prometheus.CounterVec
	QueueConcurrent prometheus.Gauge

	// Broker metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all federation metrics
func NewMetrics() *Metrics {
	return &Metrics{
		InboxReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "inbox",
				Name:      "received_total",
				Help:      "Inbox jobs received, by entity type",
			},
			[]string{"entity_type"},
		),
		InboxProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "inbox",
				Name:      "processed_total",
				Help:      "Inbox jobs completed, by HTTP status of the outcome",
			},
			[]string{"status"},
		),
		InboxRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "inbox",
				Name:      "rejected_total",
				Help:      "Inbox jobs rejected before dispatch, by reason",
			},
			[]string{"reason"},
		),
		InboxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "federation",
				Subsystem: "inbox",
				Name:      "duration_seconds",
				Help:      "Inbox dispatch duration",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"entity_type"},
		),
		InboxDefederated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "inbox",
				Name:      "defederated_total",
				Help:      "Inbox jobs silently dropped because the sender host is blocked",
			},
		),
		DeliverySent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "delivery",
				Name:      "sent_total",
				Help:      "Outbound deliveries, by result",
			},
			[]string{"result"},
		),
		DeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "federation",
				Subsystem: "delivery",
				Name:      "duration_seconds",
				Help:      "Outbound delivery duration including per-request retries",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			},
		),
		JobsRetried: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "queue",
				Name:      "retried_total",
				Help:      "Jobs returned to the queue for redelivery, by queue",
			},
			[]string{"queue"},
		),
		JobsDeadLetter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "queue",
				Name:      "dead_letter_total",
				Help:      "Jobs moved to the dead-letter stream, by queue",
			},
			[]string{"queue"},
		),
		QueueConcurrent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "federation",
				Subsystem: "queue",
				Name:      "concurrent_jobs",
				Help:      "Jobs currently being processed",
			},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "federation",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "Broker connection state (1=connected)",
			},
		),
		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "federation",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Broker reconnect events",
			},
		),
	}
}

// Register registers all metrics with the given registerer.
// Returns the first registration error encountered.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.InboxReceived,
		m.InboxProcessed,
		m.InboxRejected,
		m.InboxDuration,
		m.InboxDefederated,
		m.DeliverySent,
		m.DeliveryDuration,
		m.JobsRetried,
		m.JobsDeadLetter,
		m.QueueConcurrent,
		m.NATSConnected,
		m.NATSReconnects,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
