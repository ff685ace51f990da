package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsradar"

// Metrics holds all Prometheus collectors for the service. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	ingested      *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	scanSkips     prometheus.Counter

	// Classification
	stages    *prometheus.CounterVec
	providers *prometheus.CounterVec

	// Worker
	workerProcessed *prometheus.CounterVec
	workerChanged   *prometheus.CounterVec
	workerErrors    *prometheus.CounterVec

	// HTTP
	httpRequests *prometheus.CounterVec
}

// New registers every collector plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "source_fetches_total",
		Help: "Source fetch attempts by outcome.",
	}, []string{"source", "outcome"})
	m.fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "source_fetch_duration_seconds",
		Help:    "Duration of one source fetch including persistence.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "items_ingested_total",
		Help: "Items inserted per source.",
	}, []string{"source"})
	m.duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "items_duplicate_total",
		Help: "Fetched items dropped as duplicates per source.",
	}, []string{"source"})
	m.scanSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "due_scan_skipped_total",
		Help: "Due scans skipped because a previous scan was still running.",
	})
	m.stages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "classification_stage_total",
		Help: "Classification stage outcomes.",
	}, []string{"stage", "outcome"})
	m.providers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_provider_calls_total",
		Help: "LLM provider calls by outcome.",
	}, []string{"provider", "outcome"})
	m.workerProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "worker_processed_total",
		Help: "Items processed by a worker loop.",
	}, []string{"worker"})
	m.workerChanged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "worker_priority_changed_total",
		Help: "Processed items whose priority changed.",
	}, []string{"worker"})
	m.workerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "worker_errors_total",
		Help: "Errors raised while processing an item.",
	}, []string{"worker"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "Operational HTTP requests.",
	}, []string{"method", "endpoint", "status"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches, m.fetchDuration, m.ingested, m.duplicates, m.scanSkips,
		m.stages, m.providers,
		m.workerProcessed, m.workerChanged, m.workerErrors,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFetch records one fetch attempt.
func (m *Metrics) ObserveFetch(sourceID, outcome string, elapsed time.Duration) {
	m.fetches.WithLabelValues(sourceID, outcome).Inc()
	m.fetchDuration.WithLabelValues(sourceID).Observe(elapsed.Seconds())
}

// AddIngested records the insert and duplicate counts of a fetch.
func (m *Metrics) AddIngested(sourceID string, inserted, duplicates int) {
	m.ingested.WithLabelValues(sourceID).Add(float64(inserted))
	m.duplicates.WithLabelValues(sourceID).Add(float64(duplicates))
}

// ScanSkipped counts a due scan dropped by the overlap guard.
func (m *Metrics) ScanSkipped() {
	m.scanSkips.Inc()
}

// ObserveStage implements classify.StageRecorder.
func (m *Metrics) ObserveStage(stage, outcome string) {
	m.stages.WithLabelValues(stage, outcome).Inc()
}

// ObserveProvider implements llm.ProviderRecorder.
func (m *Metrics) ObserveProvider(provider, outcome string) {
	m.providers.WithLabelValues(provider, outcome).Inc()
}

// WorkerProcessed counts one processed item.
func (m *Metrics) WorkerProcessed(worker string, priorityChanged bool) {
	m.workerProcessed.WithLabelValues(worker).Inc()
	if priorityChanged {
		m.workerChanged.WithLabelValues(worker).Inc()
	}
}

// WorkerError counts one failed item.
func (m *Metrics) WorkerError(worker string) {
	m.workerErrors.WithLabelValues(worker).Inc()
}

// Middleware counts requests by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
