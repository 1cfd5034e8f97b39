// Package metrics provides Prometheus metrics for the competition search service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Search outcomes used as label values.
const (
	OutcomeOK         = "ok"
	OutcomeNoMatch    = "no_match"
	OutcomeEmptyQuery = "empty_query"
	OutcomeNotReady   = "not_ready"
	OutcomeInvalid    = "invalid_argument"
	OutcomeStoreError = "store_error"
	OutcomeCanceled   = "canceled"
	OutcomeError      = "error"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Index lifecycle
	indexBuilds        prometheus.Counter
	indexBuildFailures *prometheus.CounterVec
	indexBuildDuration prometheus.Histogram
	indexLastBuildUnix prometheus.Gauge
	corpusSize         prometheus.Gauge
	indexedRecords     prometheus.Gauge
	vocabularySize     prometheus.Gauge
	skippedRecords     prometheus.Counter

	// Search
	searches          *prometheus.CounterVec
	searchLatency     prometheus.Histogram
	searchResultCount prometheus.Histogram
	hydrationMisses   prometheus.Counter

	// Store
	storeErrors    *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	breakerChanges *prometheus.CounterVec

	// Ingestion
	ingestEnqueued   prometheus.Counter
	ingestDequeued   prometheus.Counter
	ingestRejected   *prometheus.CounterVec
	ingestInserted   prometheus.Counter
	ingestDuplicates prometheus.Counter
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	workerCount      prometheus.Gauge
	workerErrors     prometheus.Counter
	workerLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // register collectors once
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ekp",
		subsystem:        "search",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(n, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(n, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.indexBuilds = m.counter("index_builds_total", "Number of successfully published index snapshots")
	m.indexBuildFailures = m.counterVec("index_build_failures_total", "Number of failed index builds by reason", "reason")
	m.indexBuildDuration = m.histogram("index_build_duration_milliseconds", "Duration of load+fit+build in milliseconds",
		[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000})
	m.indexLastBuildUnix = m.gauge("index_last_build_unixtime", "Unix time of the last published snapshot")
	m.corpusSize = m.gauge("corpus_records", "Number of records in the loaded corpus")
	m.indexedRecords = m.gauge("indexed_records", "Number of records in the published index")
	m.vocabularySize = m.gauge("vocabulary_terms", "Number of terms in the published vocabulary")
	m.skippedRecords = m.counter("skipped_records_total", "Records skipped during fitting because their blob was empty")

	m.searches = m.counterVec("searches_total", "Number of search calls by outcome", "outcome")
	m.searchLatency = m.histogram("search_latency_milliseconds", "Search latency in milliseconds including hydration", m.histogramBuckets)
	m.searchResultCount = m.histogram("search_results", "Number of hydrated results per search", []float64{0, 1, 2, 3, 5, 10, 20, 50, 100})
	m.hydrationMisses = m.counter("hydration_misses_total", "Index hits that could not be re-resolved from the store")

	m.storeErrors = m.counterVec("store_errors_total", "Record store errors by operation", "operation")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Record store call latency by operation", "operation")
	m.breakerChanges = m.counterVec("breaker_state_changes_total", "Circuit breaker transitions by target state", "state")

	m.ingestEnqueued = m.counter("ingest_enqueued_total", "Records accepted into the ingest queue")
	m.ingestDequeued = m.counter("ingest_dequeued_total", "Records taken from the ingest queue by workers")
	m.ingestRejected = m.counterVec("ingest_rejected_total", "Records rejected by the ingest queue by reason", "reason")
	m.ingestInserted = m.counter("ingest_inserted_total", "Records inserted into the store")
	m.ingestDuplicates = m.counter("ingest_duplicates_total", "Records dropped because their ekp number already exists")
	m.queueSize = m.gauge("ingest_queue_size", "Current ingest queue length")
	m.queueCapacity = m.gauge("ingest_queue_capacity", "Ingest queue capacity")
	m.queueUtilization = m.gauge("ingest_queue_utilization", "Ingest queue utilization ratio (0-1)")
	m.workerCount = m.gauge("ingest_workers", "Number of ingest workers")
	m.workerErrors = m.counter("ingest_worker_errors_total", "Ingest worker errors")
	m.workerLatency = m.histogram("ingest_worker_latency_milliseconds", "Per-record ingest latency in milliseconds", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Index lifecycle.

// RecordIndexBuild records a published snapshot.
func RecordIndexBuild(duration time.Duration, corpus, indexed, vocabulary int) {
	globalManager.indexBuilds.Inc()
	globalManager.indexBuildDuration.Observe(float64(duration.Microseconds()) / 1000)
	globalManager.indexLastBuildUnix.Set(float64(time.Now().Unix()))
	globalManager.corpusSize.Set(float64(corpus))
	globalManager.indexedRecords.Set(float64(indexed))
	globalManager.vocabularySize.Set(float64(vocabulary))
}

// RecordIndexBuildFailure counts a failed build.
func RecordIndexBuildFailure(reason string) {
	globalManager.indexBuildFailures.WithLabelValues(reason).Inc()
}

// UpdateCorpusSize sets the size of the loaded corpus.
func UpdateCorpusSize(n int) {
	globalManager.corpusSize.Set(float64(n))
}

// RecordSkippedRecords adds n skipped records.
func RecordSkippedRecords(n int) {
	globalManager.skippedRecords.Add(float64(n))
}

// Search.

// RecordSearch records one search call.
func RecordSearch(outcome string, latency time.Duration, results int) {
	globalManager.searches.WithLabelValues(outcome).Inc()
	globalManager.searchLatency.Observe(float64(latency.Microseconds()) / 1000)
	if outcome == OutcomeOK || outcome == OutcomeNoMatch {
		globalManager.searchResultCount.Observe(float64(results))
	}
}

// RecordHydrationMiss counts a hit that did not re-resolve.
func RecordHydrationMiss() {
	globalManager.hydrationMisses.Inc()
}

// Store.

// RecordStoreCall records the latency of a store call and counts failures.
func RecordStoreCall(operation string, latency time.Duration, err error) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(float64(latency.Microseconds()) / 1000)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(operation).Inc()
	}
}

// RecordBreakerStateChange counts a circuit breaker transition.
func RecordBreakerStateChange(state string) {
	globalManager.breakerChanges.WithLabelValues(state).Inc()
}

// Ingestion.

// RecordIngestEnqueue counts an accepted ingest job.
func RecordIngestEnqueue() {
	globalManager.ingestEnqueued.Inc()
}

// RecordIngestDequeue counts a dequeued ingest job.
func RecordIngestDequeue() {
	globalManager.ingestDequeued.Inc()
}

// RecordIngestRejected counts a job the queue refused.
func RecordIngestRejected(reason string) {
	globalManager.ingestRejected.WithLabelValues(reason).Inc()
}

// RecordIngestInserted counts a record written to the store.
func RecordIngestInserted() {
	globalManager.ingestInserted.Inc()
}

// RecordIngestDuplicate counts a record dropped as a duplicate.
func RecordIngestDuplicate() {
	globalManager.ingestDuplicates.Inc()
}

// UpdateQueueSize sets the current queue length and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateWorkerCount sets the number of ingest workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError counts a worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerLatency records per-record processing latency.
func RecordWorkerLatency(latency time.Duration) {
	globalManager.workerLatency.Observe(float64(latency.Microseconds()) / 1000)
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
