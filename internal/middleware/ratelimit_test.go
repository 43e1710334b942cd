package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/code-supporter/code-supporter/internal/config"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d within burst should pass", i+1)
	}
	assert.False(t, rl.Allow("client-a"), "request beyond burst should be denied")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})

	assert.True(t, rl.Allow("client-a"))
	assert.False(t, rl.Allow("client-a"))
	assert.True(t, rl.Allow("client-b"), "a different client has its own bucket")
}

func TestRateLimiter_TokensRefill(t *testing.T) {
	// 6000 requests per minute refills 100 tokens per second, so one token
	// returns within tens of milliseconds.
	rl := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 6000,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})

	assert.True(t, rl.Allow("client-a"))
	assert.False(t, rl.Allow("client-a"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, rl.Allow("client-a"), "bucket should refill after waiting")
}

func TestRateLimit_Returns429WithHeaders(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})

	r := gin.New()
	r.GET("/", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
}

func TestRateLimitKey_PrefersIdentityOverIP(t *testing.T) {
	r := gin.New()
	var got string
	r.GET("/", func(c *gin.Context) {
		c.Set(UsernameKey, "alice")
		got = rateLimitKey(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, "user:alice", got)
}

func TestDefaultRateLimitConfig_UsesConfiguredValues(t *testing.T) {
	cfg := DefaultRateLimitConfig(&config.RateLimitingConfig{RequestsPerMinute: 42, Burst: 7})
	assert.Equal(t, 42, cfg.RequestsPerMinute)
	assert.Equal(t, 7, cfg.BurstSize)

	defaults := DefaultRateLimitConfig(nil)
	assert.Equal(t, 120, defaults.RequestsPerMinute)
	assert.Equal(t, 30, defaults.BurstSize)
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   10 * time.Millisecond,
	})

	rl.Allow("client-a")
	rl.mu.Lock()
	rl.entries["client-a"].lastUpdate = time.Now().Add(-11 * time.Minute)
	rl.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rl.mu.RLock()
		_, exists := rl.entries["client-a"]
		rl.mu.RUnlock()
		if !exists {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(fmt.Sprintf("idle entry was not evicted within %s", time.Second))
}
