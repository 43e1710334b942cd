// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, CORS, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → CORS → RequestID → Metrics → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including
// errors. Rate limiting runs before auth to stop brute-force attempts before
// any storage work. Auth populates the identity context the handlers read.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/telemetry"
)

// Context keys set by the auth middleware.
const (
	// UsernameKey holds the authenticated account name after JWTAuth.
	UsernameKey = "username"
	// APIKeyKey holds the verified API key string after APIKeyAuth.
	APIKeyKey = "api_key"
	// APIKeyPermissionsKey holds the verified key's permission list.
	APIKeyPermissionsKey = "api_key_permissions"
)

// APIKeyHeader is the header integrations send their key in. The api_key
// query parameter is accepted as a fallback for clients that cannot set
// headers (EventSource in browsers).
const APIKeyHeader = "X-API-Key"

// JWTAuth validates the Authorization bearer token and stores the account
// name in the context. Requests without a valid token are rejected with 401.
func JWTAuth(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with 'Bearer '"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is empty"})
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// APIKeyAuth verifies the caller's API key against the credential store and
// requires the given permission. Only active keys pass; verification bumps
// the key's last-used timestamp as a side effect of the store call.
func APIKeyAuth(keys store.APIKeyStore, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		valid, permissions, err := keys.VerifyAPIKey(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "API key verification failed"})
			return
		}
		if !valid {
			telemetry.APIKeyVerificationsTotal.WithLabelValues("rejected").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		if permission != "" && !hasPermission(permissions, permission) {
			telemetry.APIKeyVerificationsTotal.WithLabelValues("rejected").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key lacks required permission"})
			return
		}
		telemetry.APIKeyVerificationsTotal.WithLabelValues("accepted").Inc()

		c.Set(APIKeyKey, key)
		c.Set(APIKeyPermissionsKey, permissions)
		c.Next()
	}
}

func hasPermission(permissions []string, want string) bool {
	for _, p := range permissions {
		if p == want {
			return true
		}
	}
	return false
}

// Username returns the account name set by JWTAuth, or "".
func Username(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// APIKey returns the verified key set by APIKeyAuth, or "".
func APIKey(c *gin.Context) string {
	return c.GetString(APIKeyKey)
}
