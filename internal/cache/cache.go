// Package cache provides an optional Redis-backed cache for usage statistics.
// Stats aggregation reads every activity record, which is the most expensive
// query the backend runs; dashboards poll it on a timer, so a short TTL
// absorbs most of that load. The cache is a nil-safe optional: a nil *Cache
// behaves as a permanent miss and the handlers never check for it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/code-supporter/code-supporter/internal/store/models"
)

// Cache stores serialized usage reports under short TTLs.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis instance at url and verifies it with a ping.
// An empty url disables caching and returns (nil, nil).
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client, for tests running against miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func statsKey(apiKey, period string) string {
	return fmt.Sprintf("usage_stats:%s:%s", apiKey, period)
}

// GetUsageStats returns the cached report for (apiKey, period), or false on a
// miss. Cache errors are logged and reported as misses so a Redis outage
// degrades to direct reads instead of failed requests.
func (c *Cache) GetUsageStats(ctx context.Context, apiKey, period string) (*models.UsageStats, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, statsKey(apiKey, period)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("usage stats cache read failed", "error", err)
		}
		return nil, false
	}
	var stats models.UsageStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		slog.Warn("usage stats cache entry corrupt", "error", err)
		return nil, false
	}
	return &stats, true
}

// SetUsageStats stores the report under the configured TTL.
func (c *Cache) SetUsageStats(ctx context.Context, apiKey, period string, stats *models.UsageStats) {
	if c == nil || stats == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		slog.Warn("usage stats cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, statsKey(apiKey, period), payload, c.ttl).Err(); err != nil {
		slog.Warn("usage stats cache write failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
