package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header the request identifier travels in.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID string.
	RequestIDKey = "request_id"
)

// RequestID ensures every request carries a unique identifier. An inbound
// X-Request-ID (set by a load balancer or gateway) is reused unchanged;
// otherwise a new UUID is generated. The ID is stored in the context and
// echoed back in the response header so clients can correlate their request
// with server-side structured log entries.
//
// Register this middleware early so all downstream logging includes the ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
