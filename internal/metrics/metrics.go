// Package metrics exposes Prometheus instrumentation for ingestion and queries.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Fallback reasons recorded by AnswerFallback.
const (
	FallbackNoBackend    = "no_backend"
	FallbackBackendError = "backend_error"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing, which keeps tests and library callers free of registration.
//
// Metrics:
//   - docrag_ingestions_total{file_type,status}
//   - docrag_ingested_chunks_total
//   - docrag_ingestion_duration_seconds
//   - docrag_queries_total{status}
//   - docrag_answer_fallbacks_total{reason}
//   - docrag_http_requests_total{method,route,status}
//   - docrag_http_request_duration_seconds{method,route}
type Metrics struct {
	IngestionsTotal   *prometheus.CounterVec
	ChunksTotal       prometheus.Counter
	IngestionDuration prometheus.Histogram
	QueriesTotal      *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers the collectors on the default registry once per process.
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrag_ingestions_total",
			Help: "Document ingestions by file type and outcome.",
		}, []string{"file_type", "status"}),
		ChunksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docrag_ingested_chunks_total",
			Help: "Chunks written to the vector store.",
		}),
		IngestionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docrag_ingestion_duration_seconds",
			Help:    "Wall time of a full ingestion.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrag_queries_total",
			Help: "Retrieve-and-answer calls by outcome.",
		}, []string{"status"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrag_answer_fallbacks_total",
			Help: "Answers served from the deterministic fallback.",
		}, []string{"reason"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrag_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docrag_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Ingestion records the outcome of one ingestion.
func (m *Metrics) Ingestion(fileType string, chunks int, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if fileType == "" {
		fileType = "unknown"
	}
	m.IngestionsTotal.WithLabelValues(fileType, status).Inc()
	m.IngestionDuration.Observe(took.Seconds())
	if err == nil {
		m.ChunksTotal.Add(float64(chunks))
	}
}

// Query records the outcome of one retrieve-and-answer call.
func (m *Metrics) Query(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
}

// AnswerFallback records an answer served without the generative backend.
func (m *Metrics) AnswerFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// HTTPRequest records one served request. route must be the router pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
