// Package metrics provides Prometheus metrics for the Valyze valuation service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for valuation counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Manager manages all Prometheus metrics for the Valyze service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Core Business Metrics - valuations served by the model
	valuationsTotal    *prometheus.CounterVec
	valuationLatency   prometheus.Histogram
	valuationScore     prometheus.Histogram
	validationFailures prometheus.Counter
	modelInfo          *prometheus.GaugeVec

	// Provenance Metrics - audit trail delivery
	provenanceEnqueued   prometheus.Counter
	provenanceDropped    prometheus.Counter
	provenanceWritten    *prometheus.CounterVec
	provenanceSinkErrors *prometheus.CounterVec
	ledgerRecords        prometheus.Gauge
	ledgerQueryLatency   prometheus.Histogram

	// Queue Metrics - provenance queue performance
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics - provenance workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global metrics on a fresh registry with the given
// options. Call it once at startup, before any handler or worker records a
// metric. Invalid options leave the current metrics in place.
func Configure(opts ...Option) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidOptions, r)
		}
	}()

	registry := prometheus.NewRegistry()
	manager := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	globalManager, customRegistry = manager, registry
	return nil
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "valyze",
		subsystem:      "engine",
		latencyBuckets: defaultLatencyBuckets,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Core Business Metrics
	m.valuationsTotal = auto.NewCounterVec(
		m.counterOpts("valuations_total", "Total number of valuations by model and outcome"),
		[]string{"model", "version", "outcome"},
	)
	m.valuationLatency = auto.NewHistogram(m.histogramOpts(
		"valuation_latency_milliseconds",
		"Histogram of model predict latency in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
	))
	m.valuationScore = auto.NewHistogram(m.histogramOpts(
		"valuation_score",
		"Distribution of produced valuation scores",
		[]float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 1000},
	))
	m.validationFailures = auto.NewCounter(m.counterOpts(
		"validation_failures_total",
		"Total number of rejected valuation requests (malformed input)",
	))
	m.modelInfo = auto.NewGaugeVec(
		m.gaugeOpts("model_info", "Identity of the configured valuation model (always 1)"),
		[]string{"kind", "name", "version"},
	)

	// Provenance Metrics
	m.provenanceEnqueued = auto.NewCounter(m.counterOpts(
		"provenance_enqueued_total",
		"Total number of provenance records handed to the async pipeline",
	))
	m.provenanceDropped = auto.NewCounter(m.counterOpts(
		"provenance_dropped_total",
		"Total number of provenance records that bypassed the ledger (queue full or closed)",
	))
	m.provenanceWritten = auto.NewCounterVec(
		m.counterOpts("provenance_written_total", "Total number of provenance records written per sink"),
		[]string{"sink"},
	)
	m.provenanceSinkErrors = auto.NewCounterVec(
		m.counterOpts("provenance_sink_errors_total", "Total number of provenance sink write failures"),
		[]string{"sink"},
	)
	m.ledgerRecords = auto.NewGauge(m.gaugeOpts(
		"ledger_records",
		"Number of provenance records held by the ledger",
	))
	m.ledgerQueryLatency = auto.NewHistogram(m.histogramOpts(
		"ledger_query_latency_milliseconds",
		"Ledger query latency in milliseconds",
		m.latencyBuckets,
	))

	// Queue Metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the provenance queue (backlog indicator)"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum provenance queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Provenance queue utilization ratio (0-1)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of successful enqueues"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of dequeues"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts(
		"queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds",
		m.latencyBuckets,
	))

	// Worker Metrics
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Current number of provenance workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts(
		"worker_processing_latency_milliseconds",
		"Time spent delivering one provenance record to all sinks",
		m.latencyBuckets,
	))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker delivery errors"))

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that ended in an error", m.latencyBuckets),
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Current heap allocation in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Current number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_milliseconds",
		"Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// DurationMs converts d to fractional milliseconds, the unit of every latency
// histogram here.
func DurationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Valuation Metrics Functions.

// RecordValuation increments the valuation counter for a model and outcome.
func RecordValuation(model, version, outcome string) {
	globalManager.valuationsTotal.WithLabelValues(model, version, outcome).Inc()
}

// RecordValuationLatency records predict latency in milliseconds.
func RecordValuationLatency(latencyMs float64) {
	globalManager.valuationLatency.Observe(latencyMs)
}

// RecordValuationScore records a produced valuation score.
func RecordValuationScore(score float64) {
	globalManager.valuationScore.Observe(score)
}

// RecordValidationFailure increments the rejected request counter.
func RecordValidationFailure() {
	globalManager.validationFailures.Inc()
}

// SetModelInfo publishes the identity of the running model.
func SetModelInfo(kind, name, version string) {
	globalManager.modelInfo.Reset()
	globalManager.modelInfo.WithLabelValues(kind, name, version).Set(1)
}

// Provenance Metrics Functions.

// RecordProvenanceEnqueued increments the enqueued provenance counter.
func RecordProvenanceEnqueued() {
	globalManager.provenanceEnqueued.Inc()
}

// RecordProvenanceDropped increments the dropped provenance counter.
func RecordProvenanceDropped() {
	globalManager.provenanceDropped.Inc()
}

// RecordProvenanceWritten increments the written counter for a sink.
func RecordProvenanceWritten(sink string) {
	globalManager.provenanceWritten.WithLabelValues(sink).Inc()
}

// RecordProvenanceSinkError increments the failure counter for a sink.
func RecordProvenanceSinkError(sink string) {
	globalManager.provenanceSinkErrors.WithLabelValues(sink).Inc()
}

// UpdateLedgerRecords sets the number of records held by the ledger.
func UpdateLedgerRecords(count int) {
	globalManager.ledgerRecords.Set(float64(count))
}

// UpdateLedgerRecordsDelta adjusts the ledger record gauge by delta.
func UpdateLedgerRecordsDelta(delta int) {
	globalManager.ledgerRecords.Add(float64(delta))
}

// RecordLedgerQueryLatency records ledger query latency in milliseconds.
func RecordLedgerQueryLatency(latencyMs float64) {
	globalManager.ledgerQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
