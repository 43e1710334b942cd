// usage.go implements the usage reporting endpoints. Reports are scoped to
// one of the caller's API keys; the aggregate view across keys the caller
// does not own is not exposed.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/cache"
	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

// UsageHandlers handles usage reporting endpoints.
type UsageHandlers struct {
	keys  store.APIKeyStore
	usage store.UsageStore
	stats *cache.Cache
}

// NewUsageHandlers creates a new UsageHandlers instance. stats may be nil
// when no cache is configured.
func NewUsageHandlers(keys store.APIKeyStore, usage store.UsageStore, stats *cache.Cache) *UsageHandlers {
	return &UsageHandlers{keys: keys, usage: usage, stats: stats}
}

// requireOwnedKey verifies the api_key query parameter names a live key the
// caller created.
func (h *UsageHandlers) requireOwnedKey(c *gin.Context) (string, bool) {
	apiKey := c.Query("api_key")
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return "", false
	}

	record, err := h.keys.GetAPIKey(c.Request.Context(), apiKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load API key"})
		return "", false
	}
	if record == nil || record.Status == models.APIKeyStatusDeleted || !record.IsOwnedBy(middleware.Username(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return "", false
	}
	return apiKey, true
}

// ListUsers returns the external end users seen through one key.
// GET /api/usage/users?api_key=...&limit=50&since=2026-08-01T00:00:00Z
func (h *UsageHandlers) ListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, ok := h.requireOwnedKey(c)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit < 1 || limit > 500 {
			limit = 50
		}

		var since time.Time
		if raw := c.Query("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			since = parsed
		}

		users, err := h.usage.ListAPIUsers(c.Request.Context(), apiKey, limit, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
	}
}

// Stats returns the aggregated usage report for one key. Responses are served
// from the cache when one is configured; aggregation reads every activity
// record, so dashboards polling this endpoint would otherwise hammer storage.
// GET /api/usage/stats?api_key=...&period=day
func (h *UsageHandlers) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, ok := h.requireOwnedKey(c)
		if !ok {
			return
		}

		period := c.DefaultQuery("period", models.PeriodMonth)
		switch period {
		case models.PeriodDay, models.PeriodWeek, models.PeriodMonth, models.PeriodAll:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be day, week, month, or all"})
			return
		}

		ctx := c.Request.Context()
		if stats, hit := h.stats.GetUsageStats(ctx, apiKey, period); hit {
			c.JSON(http.StatusOK, gin.H{"stats": stats, "period": period, "cached": true})
			return
		}

		stats, err := h.usage.UsageStats(ctx, apiKey, period)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute usage stats"})
			return
		}
		h.stats.SetUsageStats(ctx, apiKey, period, stats)

		c.JSON(http.StatusOK, gin.H{"stats": stats, "period": period})
	}
}
