// security.go provides Gin middleware that injects protective HTTP response
// headers and handles cross-origin requests.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/config"
)

// SecurityHeaders adds headers suitable for a JSON API to all responses. The
// CSP denies everything: this server never serves HTML, so any attempt to
// render its responses in a browser context is a mistake.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// CORS answers preflight requests and sets the allow headers for configured
// origins. An allowed_origins entry of "*" admits any origin; otherwise the
// inbound Origin must match one entry exactly.
func CORS(cfg *config.CORSConfig) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if cfg != nil && len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(cfg, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+APIKeyHeader)
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(cfg *config.CORSConfig, origin string) bool {
	if cfg == nil || len(cfg.AllowedOrigins) == 0 {
		return false
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
