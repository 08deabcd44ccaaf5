package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the call trace service,
// organized by subsystem: record emission, record delivery, the
// correlation registry, and routing configuration updates. All metrics
// are registered via promauto with the default Prometheus registry.
type Metrics struct {
	// RecordsEmitted counts emitted log records by action and level.
	RecordsEmitted *prometheus.CounterVec

	// RecordsDelivered counts records handed to remote delivery, labeled by mode.
	RecordsDelivered *prometheus.CounterVec

	// DeliveryFailures counts failed deliveries, labeled by reason.
	DeliveryFailures *prometheus.CounterVec

	// DeliveriesDropped counts deliveries discarded by the outbound rate limiter.
	DeliveriesDropped prometheus.Counter

	// DeliveryDuration observes delivery round-trip duration in seconds.
	DeliveryDuration prometheus.Histogram

	// ContextsCreated counts process contexts allocated, labeled by kind
	// (top_level or child).
	ContextsCreated *prometheus.CounterVec

	// RegistryEntries tracks the number of live owner entries in the
	// correlation registry.
	RegistryEntries prometheus.Gauge

	// ConfigUpdates counts routing configuration updates by result
	// (applied or rejected).
	ConfigUpdates *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RecordsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Total number of log records emitted by action and level",
		}, []string{"action", "level"}),
		RecordsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_delivered_total",
			Help:      "Total number of records handed to remote delivery by mode",
		}, []string{"mode"}),
		DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of failed record deliveries by reason",
		}, []string{"reason"}),
		DeliveriesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Total number of deliveries dropped by the rate limiter",
		}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of record deliveries in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ContextsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contexts_created_total",
			Help:      "Total number of process contexts created by kind",
		}, []string{"kind"}),
		RegistryEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_entries",
			Help:      "Number of live owner entries in the correlation registry",
		}),
		ConfigUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_updates_total",
			Help:      "Total number of routing configuration updates by result",
		}, []string{"result"}),
	}
}

// RecordEmitted records an emitted log record.
func (m *Metrics) RecordEmitted(action, level string) {
	m.RecordsEmitted.WithLabelValues(action, level).Inc()
}

// RecordDelivered records a record handed to remote delivery.
func (m *Metrics) RecordDelivered(mode string) {
	m.RecordsDelivered.WithLabelValues(mode).Inc()
}

// RecordDeliveryFailed records a failed delivery.
func (m *Metrics) RecordDeliveryFailed(reason string) {
	m.DeliveryFailures.WithLabelValues(reason).Inc()
}

// RecordDeliveryDropped records a delivery discarded by the rate limiter.
func (m *Metrics) RecordDeliveryDropped() {
	m.DeliveriesDropped.Inc()
}

// RecordDeliveryDuration observes a delivery round trip.
func (m *Metrics) RecordDeliveryDuration(seconds float64) {
	m.DeliveryDuration.Observe(seconds)
}

// RecordContextCreated records an allocated process context.
func (m *Metrics) RecordContextCreated(kind string) {
	m.ContextsCreated.WithLabelValues(kind).Inc()
}

// RecordRegistrySize sets the live registry entry gauge.
func (m *Metrics) RecordRegistrySize(n int) {
	m.RegistryEntries.Set(float64(n))
}

// RecordConfigUpdate records a routing configuration update outcome.
func (m *Metrics) RecordConfigUpdate(result string) {
	m.ConfigUpdates.WithLabelValues(result).Inc()
}
