// Package metrics provides Prometheus metrics for the tally ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ledger metrics - the business core.
	entitiesRegistered prometheus.Counter
	entityCount        prometheus.Gauge
	stakesOpened       prometheus.Counter
	stakesClosed       prometheus.Counter
	stakesWithdrawn    prometheus.Counter
	stakeCount         prometheus.Gauge
	epochsCreated      prometheus.Counter
	epochsFinalized    prometheus.Counter
	rewardsClaimed     prometheus.Counter
	ledgerOpDuration   *prometheus.HistogramVec
	duplicateRequests  prometheus.Counter

	// Rank index metrics.
	rankedEntities prometheus.Gauge

	// Event bus metrics.
	busCapacity      prometheus.Gauge
	busSize          prometheus.Gauge
	busEnqueues      prometheus.Counter
	busDequeues      prometheus.Counter
	busEnqueueErrors *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	workerCount      prometheus.Gauge

	// HTTP metrics.
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tally",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus collectors.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.entitiesRegistered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "entities_registered_total",
		Help:      "Total number of entity registrations accepted",
	})

	m.entityCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "entity_count",
		Help:      "Current number of entities in the registry",
	})

	m.stakesOpened = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stakes_opened_total",
		Help:      "Total number of stakes opened",
	})

	m.stakesClosed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stakes_closed_total",
		Help:      "Total number of stakes closed",
	})

	m.stakesWithdrawn = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stakes_withdrawn_total",
		Help:      "Total number of stakes withdrawn after the delay",
	})

	m.stakeCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stake_count",
		Help:      "Current number of stake positions in the ledger",
	})

	m.epochsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "epochs_created_total",
		Help:      "Total number of epochs materialized by clock catch-up",
	})

	m.epochsFinalized = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "epochs_finalized_total",
		Help:      "Total number of epochs scored and finalized",
	})

	m.rewardsClaimed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rewards_claimed_total",
		Help:      "Total number of successful reward claims",
	})

	m.ledgerOpDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "operation_duration_milliseconds",
			Help:      "Ledger operation duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"op"},
	)

	m.duplicateRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_requests_total",
		Help:      "Total number of requests dropped as replays",
	})

	m.rankedEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranked_entities",
		Help:      "Number of entities currently tracked by the rank index",
	})

	m.busCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_capacity",
		Help:      "Maximum capacity of the event bus",
	})

	m.busSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_size",
		Help:      "Current number of buffered events on the bus",
	})

	m.busEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_enqueue_total",
		Help:      "Total number of events enqueued on the bus",
	})

	m.busDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_dequeue_total",
		Help:      "Total number of events dequeued from the bus",
	})

	m.busEnqueueErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "bus_enqueue_errors_total",
			Help:      "Total number of rejected enqueues by reason",
		},
		[]string{"reason"},
	)

	m.eventsDelivered = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_delivered_total",
			Help:      "Total number of events delivered to sinks by kind",
		},
		[]string{"kind"},
	)

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of event delivery workers",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Ledger metric helpers.

// RecordEntityRegistered increments the registration counter.
func RecordEntityRegistered() {
	globalManager.entitiesRegistered.Inc()
}

// UpdateEntityCount sets the current registry size.
func UpdateEntityCount(count int) {
	globalManager.entityCount.Set(float64(count))
}

// RecordStakeOpened increments the opened stakes counter.
func RecordStakeOpened() {
	globalManager.stakesOpened.Inc()
}

// RecordStakeClosed increments the closed stakes counter.
func RecordStakeClosed() {
	globalManager.stakesClosed.Inc()
}

// RecordStakeWithdrawn increments the withdrawn stakes counter.
func RecordStakeWithdrawn() {
	globalManager.stakesWithdrawn.Inc()
}

// UpdateStakeCount sets the current number of stake positions.
func UpdateStakeCount(count int) {
	globalManager.stakeCount.Set(float64(count))
}

// RecordEpochCreated increments the created epochs counter.
func RecordEpochCreated() {
	globalManager.epochsCreated.Inc()
}

// RecordEpochFinalized increments the finalized epochs counter.
func RecordEpochFinalized() {
	globalManager.epochsFinalized.Inc()
}

// RecordRewardClaimed increments the successful claims counter.
func RecordRewardClaimed() {
	globalManager.rewardsClaimed.Inc()
}

// RecordLedgerOpDuration records an operation duration in milliseconds.
func RecordLedgerOpDuration(op string, durationMs float64) {
	globalManager.ledgerOpDuration.WithLabelValues(op).Observe(durationMs)
}

// RecordDuplicateRequest increments the replay-drop counter.
func RecordDuplicateRequest() {
	globalManager.duplicateRequests.Inc()
}

// Rank index metric helpers.

// UpdateRankedEntities sets the rank index size.
func UpdateRankedEntities(count int) {
	globalManager.rankedEntities.Set(float64(count))
}

// Event bus metric helpers.

// UpdateBusCapacity sets the bus capacity gauge.
func UpdateBusCapacity(capacity int) {
	globalManager.busCapacity.Set(float64(capacity))
}

// UpdateBusSize sets the current bus backlog gauge.
func UpdateBusSize(size int) {
	globalManager.busSize.Set(float64(size))
}

// RecordBusEnqueue increments the enqueue counter.
func RecordBusEnqueue() {
	globalManager.busEnqueues.Inc()
}

// RecordBusDequeue increments the dequeue counter.
func RecordBusDequeue() {
	globalManager.busDequeues.Inc()
}

// RecordBusEnqueueError increments the rejected-enqueue counter for a reason.
func RecordBusEnqueueError(reason string) {
	globalManager.busEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordEventDelivered increments the delivered counter for an event kind.
func RecordEventDelivered(kind string) {
	globalManager.eventsDelivered.WithLabelValues(kind).Inc()
}

// UpdateWorkerCount sets the delivery worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// HTTP metric helpers.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
