// Package api wires together all HTTP routes for the Code Supporter backend.
//
// Route grouping:
//   - /health is public and unauthenticated, for load balancer checks.
//   - /api/register and /api/login are public behind a strict rate limit.
//   - /api/chat/public requires an API key with the "chat" permission; it is
//     the surface third-party integrations call on behalf of their own users.
//   - Everything else under /api requires a session token.
//
// The Prometheus /metrics endpoint is NOT served here; main.go starts it on a
// side-channel port so the scrape surface never shares a listener with the
// public API.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/api/handlers"
	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/cache"
	"github.com/code-supporter/code-supporter/internal/chat"
	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
)

// Dependencies carries the constructed services the router wires into
// handlers. Everything is injected; the api package owns no state.
type Dependencies struct {
	Backend   store.Backend
	Completer chat.Completer
	Issuer    *auth.TokenIssuer
	Stats     *cache.Cache
}

// BackgroundServices holds resources that must be stopped during graceful
// shutdown, after the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(&cfg.Security.CORS))
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	bg := &BackgroundServices{}
	var apiLimiter, authLimiter gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		general := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(&cfg.Security.RateLimiting))
		strict := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		bg.rateLimiters = append(bg.rateLimiters, general, strict)
		apiLimiter = middleware.RateLimit(general)
		authLimiter = middleware.RateLimit(strict)
	} else {
		passthrough := func(c *gin.Context) { c.Next() }
		apiLimiter, authLimiter = passthrough, passthrough
	}

	authH := handlers.NewAuthHandlers(&cfg.Auth, deps.Backend, deps.Issuer)
	userH := handlers.NewUserHandlers(&cfg.Auth, deps.Backend)
	chatH := handlers.NewChatHandlers(&cfg.Chat, deps.Backend, deps.Backend, deps.Completer)
	convH := handlers.NewConversationHandlers(deps.Backend)
	keyH := handlers.NewAPIKeyHandlers(deps.Backend)
	usageH := handlers.NewUsageHandlers(deps.Backend, deps.Backend, deps.Stats)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "storage": deps.Backend.Kind()})
	})

	public := router.Group("/api")
	public.Use(authLimiter)
	{
		public.POST("/register", authH.Register())
		public.POST("/login", authH.Login())
	}

	integration := router.Group("/api")
	integration.Use(apiLimiter)
	integration.Use(middleware.APIKeyAuth(deps.Backend, "chat"))
	{
		integration.POST("/chat/public", chatH.ChatPublic())
	}

	session := router.Group("/api")
	session.Use(apiLimiter)
	session.Use(middleware.JWTAuth(deps.Issuer))
	{
		session.GET("/user", userH.Profile())
		session.PUT("/user/settings", userH.UpdateSettings())
		session.PUT("/user/password", userH.ChangePassword())

		session.POST("/chat", chatH.Chat())
		session.POST("/chat/stream", chatH.ChatStream())

		session.GET("/conversations", convH.List())
		session.POST("/conversations", convH.Create())
		session.DELETE("/conversations", convH.DeleteAll())
		session.GET("/conversations/:conversation_id", convH.Get())
		session.PUT("/conversations/:conversation_id", convH.UpdateTitle())
		session.DELETE("/conversations/:conversation_id", convH.Delete())

		session.POST("/apikeys", keyH.Create())
		session.GET("/apikeys", keyH.List())
		session.GET("/apikeys/:key", keyH.Get())
		session.PUT("/apikeys/:key/status", keyH.UpdateStatus())
		session.PUT("/apikeys/:key/permissions", keyH.UpdatePermissions())
		session.DELETE("/apikeys/:key", keyH.Delete())

		session.GET("/usage/users", usageH.ListUsers())
		session.GET("/usage/stats", usageH.Stats())
	}

	return router, bg
}
