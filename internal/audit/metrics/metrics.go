package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label on EventsDropped.
const (
	ReasonMalformed = "malformed_envelope"
	ReasonInvalid   = "validation_error"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics provides observability for the audit pipeline.
// Tracks event outcomes, persistence and forwarding, and store call durations.
type Metrics struct {
	EventsProcessed  prometheus.Counter
	EventsDropped    *prometheus.CounterVec
	EventsPersisted  prometheus.Counter
	EventsDuplicate  prometheus.Counter
	ForwardEnqueued  prometheus.Counter
	ForwardDropped   *prometheus.CounterVec
	ForwardFailed    prometheus.Counter
	PersistDuration  prometheus.Histogram
	ListDuration     prometheus.Histogram
	RetentionPurged  prometheus.Counter
	ConsumerInFlight prometheus.Gauge
}

// New creates a Metrics instance registered with reg. A nil reg leaves the
// collectors unregistered, which tests rely on to build many instances.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_events_processed_total",
			Help: "Total number of events that completed the pipeline",
		}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fcp_audit_events_dropped_total",
			Help: "Total number of events dropped as undeliverable, by reason",
		}, []string{"reason"}),
		EventsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_records_inserted_total",
			Help: "Total number of audit records inserted",
		}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_records_duplicate_total",
			Help: "Total number of persists discarded because the record already existed",
		}),
		ForwardEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_soc_enqueued_total",
			Help: "Total number of security views accepted for forwarding",
		}),
		ForwardDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fcp_audit_soc_dropped_total",
			Help: "Total number of security views dropped before delivery, by reason",
		}, []string{"reason"}),
		ForwardFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_soc_produce_failures_total",
			Help: "Total number of failed produce attempts to the security sink",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fcp_audit_persist_duration_seconds",
			Help:    "Duration of insert-if-absent writes",
			Buckets: durationBuckets,
		}),
		ListDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fcp_audit_list_duration_seconds",
			Help:    "Duration of paginated audit reads",
			Buckets: durationBuckets,
		}),
		RetentionPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcp_audit_retention_purged_total",
			Help: "Total number of records removed by emulated expiry",
		}),
		ConsumerInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fcp_audit_consumer_in_flight",
			Help: "Number of queue messages currently being processed",
		}),
	}
}

// IncrementProcessed records an event that completed the pipeline.
func (m *Metrics) IncrementProcessed() {
	if m == nil {
		return
	}
	m.EventsProcessed.Inc()
}

// IncrementDropped records an event dropped for reason.
func (m *Metrics) IncrementDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordPersist records a write outcome and its duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) RecordPersist(start time.Time, inserted bool) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(time.Since(start).Seconds())
	if inserted {
		m.EventsPersisted.Inc()
	} else {
		m.EventsDuplicate.Inc()
	}
}

// ObserveList records the duration of a List operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveList(start time.Time) {
	if m == nil {
		return
	}
	m.ListDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementForwardEnqueued() {
	if m == nil {
		return
	}
	m.ForwardEnqueued.Inc()
}

func (m *Metrics) IncrementForwardDropped(reason string) {
	if m == nil {
		return
	}
	m.ForwardDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementForwardFailed() {
	if m == nil {
		return
	}
	m.ForwardFailed.Inc()
}

// AddPurged records rows removed by a retention purge.
func (m *Metrics) AddPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionPurged.Add(float64(n))
}

// InFlight adjusts the consumer in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.ConsumerInFlight.Add(delta)
}
