package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncSpansStarted()
		m.IncSpansDropped(DropMaxSpans)
		m.RecordFlush(time.Second, true)
		m.RecordReporterRequest("http", "success", time.Millisecond, 10)
		NewTimer(m, "http").Stop("success", 0)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncTransactionsStarted(true)
	m.IncTransactionsStarted(false)
	m.IncSpansDropped(DropMaxSpans)
	m.IncSpansDropped(DropExitSpanMinDuration)
	m.IncSpansDropped(DropMaxSpans)
	m.IncSpansCompressed("exact_match")
	m.RecordEvent("span", "success")
	m.RecordEvent("span", "encode_error")
	m.RecordFlush(10*time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpansDropped.WithLabelValues(DropMaxSpans)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsStarted.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushTimeouts))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TransactionsStarted)
	assert.Equal(t, int64(3), snap.SpansDropped)
	assert.Equal(t, int64(1), snap.SpansCompressed)
	assert.Equal(t, int64(1), snap.EventsSent)
	assert.Equal(t, int64(1), snap.EventsFailed)
	assert.Equal(t, int64(1), snap.FlushTimeouts)

	// A second collector set on its own registry must not collide.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	router.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "418")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "apm_http_requests_total")
	assert.Contains(t, w.Body.String(), "apm_uptime_seconds")
}
