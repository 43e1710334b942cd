// ratelimit.go provides Gin middleware that enforces per-client token-bucket
// rate limits, returning 429 when the requests-per-minute threshold is
// exceeded.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/safego"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained request rate allowed per client.
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed.
	BurstSize int
	// CleanupInterval is how often idle client entries are evicted.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the general API limits, overridable from
// application configuration.
func DefaultRateLimitConfig(cfg *config.RateLimitingConfig) RateLimitConfig {
	out := RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         30,
		CleanupInterval:   5 * time.Minute,
	}
	if cfg != nil {
		if cfg.RequestsPerMinute > 0 {
			out.RequestsPerMinute = cfg.RequestsPerMinute
		}
		if cfg.Burst > 0 {
			out.BurstSize = cfg.Burst
		}
	}
	return out
}

// AuthRateLimitConfig returns stricter limits for login and registration.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// rateLimitEntry tracks the token bucket for a single client.
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements a token bucket rate limiter keyed by client.
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.RWMutex
	stopCh  chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}
	safego.Go("ratelimit-cleanup", rl.cleanup)
	return rl
}

// cleanup periodically removes entries idle for more than ten minutes.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow reports whether a request from the given key should proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]
	if !exists {
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true
	}
	return false
}

// RemainingTokens returns how many tokens are left for a key.
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, exists := rl.entries[key]
	if !exists {
		return rl.config.BurstSize
	}

	elapsed := time.Since(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	current := min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	return int(current)
}

// RateLimit creates a Gin middleware over the given limiter.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))
		c.Next()
	}
}

// rateLimitKey identifies the client. Priority: username > api key > IP, so
// authenticated clients are limited per account rather than per address.
func rateLimitKey(c *gin.Context) string {
	if username := c.GetString(UsernameKey); username != "" {
		return "user:" + username
	}
	if key := c.GetString(APIKeyKey); key != "" {
		return "apikey:" + key
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
