package instrumentation

import (
	"fmt"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/apmcore/internal/apm"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// TransactionTypeRequest is the type of transactions for inbound requests
const TransactionTypeRequest = "request"

type middlewareConfig struct {
	ignore []string
}

// MiddlewareOption customizes Middleware
type MiddlewareOption func(*middlewareConfig)

// WithIgnoreURLs replaces the tracer's ignore patterns. Patterns use
// doublestar syntax and match the request path, e.g. "/health" or "/static/**".
func WithIgnoreURLs(patterns ...string) MiddlewareOption {
	return func(c *middlewareConfig) { c.ignore = patterns }
}

// Middleware starts a transaction for every request not matching an ignore
// pattern, continuing the caller's trace when headers are present
func Middleware(tracer *apm.Tracer, opts ...MiddlewareOption) gin.HandlerFunc {
	cfg := middlewareConfig{ignore: tracer.Config().TransactionIgnoreURLs}
	for _, opt := range opts {
		opt(&cfg)
	}
	ignore := validPatterns(cfg.ignore)

	return func(c *gin.Context) {
		if ignored(ignore, c.Request.URL.Path) {
			c.Next()
			return
		}

		traceparent, tracestate := tracecontext.Extract(tracecontext.HeaderCarrier(c.Request.Header))
		ctx, tx := tracer.StartTransaction(c.Request.Context(), transactionName(c), TransactionTypeRequest,
			apm.TraceHeaders(traceparent, tracestate))
		tx.SetRequest(c.Request.Method, requestURL(c.Request))
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if r := recover(); r != nil {
				tx.RecordError(fmt.Errorf("panic: %v", r))
				tx.SetOutcomeFromHTTPStatus(http.StatusInternalServerError)
				tx.End()
				panic(r)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			tx.RecordError(c.Errors.Last())
		}
		tx.SetOutcomeFromHTTPStatus(c.Writer.Status())
		tx.End()
	}
}

func transactionName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = "unknown route"
	}
	return c.Request.Method + " " + route
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host
	u.User = nil
	return u.String()
}

func validPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			out = append(out, p)
		}
	}
	return out
}

func ignored(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
