package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSExposesTraceHeaders(t *testing.T) {
	router := newRouter(CORS(DefaultCORSConfig()))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "traceparent,tracestate")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "Traceparent")
	assert.Contains(t, allowed, "Tracestate")

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://app.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Traceparent")
}

func TestRateLimit(t *testing.T) {
	router := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other clients have their own bucket
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGlobalRateLimit(t *testing.T) {
	router := newRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	for i, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
}

func TestLimiterEviction(t *testing.T) {
	now := time.Unix(1700000000, 0)
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 10, Burst: 10, IdleTimeout: time.Minute},
		func() time.Time { return now })

	require.True(t, set.allow("a"))
	require.True(t, set.allow("b"))
	assert.Equal(t, 2, set.size())

	now = now.Add(30 * time.Second)
	require.True(t, set.allow("a"))
	assert.Equal(t, 2, set.size())

	now = now.Add(45 * time.Second)
	require.True(t, set.allow("c"))
	assert.Equal(t, 2, set.size(), "b idle past the timeout is evicted")
}
