package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/apmcore/internal/apm"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/reporter"
)

func newTestTracer(t *testing.T, mutate func(*config.TracerConfig)) (*apm.Tracer, *reporter.Memory) {
	t.Helper()
	cfg := config.Default().Tracer
	if mutate != nil {
		mutate(&cfg)
	}
	mem := reporter.NewMemory()
	tracer := apm.New(cfg, mem)
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })
	return tracer, mem
}

func flush(t *testing.T, tracer *apm.Tracer) {
	t.Helper()
	require.NoError(t, tracer.Flush(context.Background()))
}

func newTestRouter(tracer *apm.Tracer, opts ...MiddlewareOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery(), Middleware(tracer, opts...))

	router.GET("/users/:id", func(c *gin.Context) {
		if tracer.CurrentTransaction(c.Request.Context()) == nil {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/static/*file", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantName    string
		wantResult  string
		wantOutcome string
	}{
		{"matched route", "/users/42", http.StatusOK, "GET /users/:id", "HTTP 2xx", model.OutcomeSuccess},
		{"handler error", "/fail", http.StatusInternalServerError, "GET /fail", "HTTP 5xx", model.OutcomeFailure},
		{"unknown route", "/missing", http.StatusNotFound, "GET unknown route", "HTTP 4xx", model.OutcomeFailure},
		{"panic", "/panic", http.StatusInternalServerError, "GET /panic", "HTTP 5xx", model.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, mem := newTestTracer(t, nil)
			router := newTestRouter(tracer)

			w := serve(router, httptest.NewRequest(http.MethodGet, "http://example.com"+tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			flush(t, tracer)

			txs := mem.Transactions()
			require.Len(t, txs, 1)
			got := txs[0]
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, TransactionTypeRequest, got.Type)
			assert.Equal(t, tt.wantResult, got.Result)
			assert.Equal(t, tt.wantOutcome, got.Outcome)
			require.NotNil(t, got.Context)
			assert.Equal(t, "http://example.com"+tt.path, got.Context.Request.URL)
			assert.Equal(t, tt.wantStatus, got.Context.Response.StatusCode)
		})
	}
}

func TestMiddlewareContinuesTrace(t *testing.T) {
	tracer, mem := newTestTracer(t, nil)
	router := newTestRouter(tracer)

	req := httptest.NewRequest(http.MethodGet, "/users/7", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	req.Header.Set("tracestate", "es=s:0.25")
	serve(router, req)
	flush(t, tracer)

	got := mem.Transactions()[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got.TraceID)
	assert.Equal(t, "b7ad6b7169203331", got.ParentID)
	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 0.25, *got.SampleRate)
}

func TestMiddlewareIgnoreURLs(t *testing.T) {
	t.Run("option patterns", func(t *testing.T) {
		tracer, mem := newTestTracer(t, nil)
		router := newTestRouter(tracer, WithIgnoreURLs("/health", "/static/**", "[invalid"))

		for _, path := range []string{"/health", "/static/css/app.css", "/static/logo.png"} {
			w := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
		serve(router, httptest.NewRequest(http.MethodGet, "/users/1", nil))
		flush(t, tracer)

		txs := mem.Transactions()
		require.Len(t, txs, 1)
		assert.Equal(t, "GET /users/:id", txs[0].Name)
	})

	t.Run("tracer config patterns", func(t *testing.T) {
		tracer, mem := newTestTracer(t, func(c *config.TracerConfig) {
			c.TransactionIgnoreURLs = []string{"/health"}
		})
		router := newTestRouter(tracer)

		serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		flush(t, tracer)
		assert.Empty(t, mem.Transactions())
	})
}
