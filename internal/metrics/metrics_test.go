package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Ingestion(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.Ingestion("txt", 3, time.Second, nil)
	m.Ingestion("pdf", 5, time.Second, errors.New("boom"))
	m.Ingestion("", 0, time.Millisecond, errors.New("bad type"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionsTotal.WithLabelValues("txt", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionsTotal.WithLabelValues("pdf", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionsTotal.WithLabelValues("unknown", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksTotal))
}

func TestMetrics_QueryAndFallback(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.Query(nil)
	m.Query(nil)
	m.Query(errors.New("store down"))
	m.AnswerFallback(FallbackNoBackend)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues(FallbackNoBackend)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ingestion("txt", 1, time.Second, nil)
		m.Query(nil)
		m.AnswerFallback(FallbackBackendError)
		m.HTTPRequest("GET", "/healthz", 200, time.Millisecond)
	})
}

func TestMetrics_HTTPRequest(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.HTTPRequest("POST", "/api/rag/query", 200, 10*time.Millisecond)
	m.HTTPRequest("POST", "/api/rag/query", 200, 20*time.Millisecond)
	m.HTTPRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/rag/query", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}
