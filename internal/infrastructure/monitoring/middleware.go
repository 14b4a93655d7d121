package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one reporter request
type Timer struct {
	start    time.Time
	metrics  *Metrics
	reporter string
}

// NewTimer starts a timer for reporter
func NewTimer(metrics *Metrics, reporter string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		reporter: reporter,
	}
}

// Stop records the request with its status and payload size
func (t *Timer) Stop(status string, bytes int) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordReporterRequest(t.reporter, status, duration, bytes)
	return duration
}
