package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/telemetry"
)

// Metrics records the http_requests_total counter and the
// http_request_duration_seconds histogram for every request.
//
// The path label is set from c.FullPath(), which returns the matched Gin
// route template (e.g. /api/conversations/:conversation_id) rather than the
// raw URL. Requests that match no registered route use the literal string
// "<no-route>" so unhandled paths cannot inflate label cardinality.
//
// Register after gin.Recovery() and RequestID so the status set by error
// handlers is captured correctly.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
