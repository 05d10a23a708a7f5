package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "natsbridge"

// Request outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeDeadline  = "deadline"
	OutcomeCancelled = "cancelled"
	OutcomeInvalid   = "invalid"
)

// Metrics contains the metrics every natsbridge component reports into.
type Metrics struct {
	// Request orchestrator
	RequestsTotal   *prometheus.CounterVec
	RequestAttempts prometheus.Histogram
	RequestRetries  prometheus.Counter
	RequestDuration prometheus.Histogram

	// Publish path
	MessagesPublished prometheus.Counter
	PublishDuration   prometheus.Histogram

	// Subscription gate
	MessagesDelivered prometheus.Counter
	MessagesDropped   prometheus.Counter
	IngestDraining    prometheus.Gauge

	// Connection lifecycle
	LifecycleEvents *prometheus.CounterVec
	NATSConnected   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance; nothing is registered yet.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "request",
				Name:      "total",
				Help:      "Settled request operations by outcome",
			},
			[]string{"outcome"},
		),

		RequestAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "request",
				Name:      "attempts",
				Help:      "Transport attempts issued per request operation",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
			},
		),

		RequestRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "request",
				Name:      "retries_total",
				Help:      "Attempts issued after a timed out attempt",
			},
		),

		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "request",
				Name:      "duration_seconds",
				Help:      "Wall-clock time of request operations",
				Buckets:   prometheus.DefBuckets,
			},
		),

		MessagesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
		),

		PublishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "duration_seconds",
				Help:      "Time spent handing a message to the connection",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
		),

		MessagesDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "delivered_total",
				Help:      "Inbound messages handed to subscription handlers",
			},
		),

		MessagesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Inbound messages dropped because ingest is draining",
			},
		),

		IngestDraining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "draining",
				Help:      "Ingest gate state (0=accepting, 1=draining)",
			},
		),

		LifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "lifecycle_events_total",
				Help:      "Connection lifecycle signals by name",
			},
			[]string{"signal"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestAttempts,
		m.RequestRetries,
		m.RequestDuration,
		m.MessagesPublished,
		m.PublishDuration,
		m.MessagesDelivered,
		m.MessagesDropped,
		m.IngestDraining,
		m.LifecycleEvents,
		m.NATSConnected,
	}
}
