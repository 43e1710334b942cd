package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

// keySummary is the per-key running total kept next to the per-user records,
// so dashboards can show totals without reading every file.
type keySummary struct {
	TotalRequests int64     `json:"total_requests"`
	TotalUsers    int       `json:"total_users"`
	LastUpdated   time.Time `json:"last_updated"`
}

func (b *Backend) apiUsersDir() string {
	return filepath.Join(b.dataDir, "api_users")
}

func (b *Backend) keyDir(apiKey string) string {
	return filepath.Join(b.apiUsersDir(), sanitize(apiKey))
}

func (b *Backend) apiUserPath(apiKey, externalUserID string) string {
	return filepath.Join(b.keyDir(apiKey), sanitize(externalUserID)+".json")
}

func (b *Backend) summaryPath(apiKey string) string {
	return filepath.Join(b.keyDir(apiKey), "_summary.json")
}

// TrackAPIUser upserts the activity record for (apiKey, externalUserID).
func (b *Backend) TrackAPIUser(ctx context.Context, apiKey, externalUserID string, userInfo map[string]any) (bool, error) {
	if apiKey == "" || externalUserID == "" {
		return false, store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ts := now()
	path := b.apiUserPath(apiKey, externalUserID)

	var record models.APIUser
	exists, err := readJSON(path, &record)
	if err != nil {
		return false, b.fail("track api user", err)
	}
	if exists {
		record.TotalRequests++
		if ts.After(record.LastActive) {
			record.LastActive = ts
		}
		if userInfo != nil {
			record.UserInfo = userInfo
		}
	} else {
		record = models.APIUser{
			APIKey:         apiKey,
			ExternalUserID: externalUserID,
			FirstSeen:      ts,
			LastActive:     ts,
			TotalRequests:  1,
			UserInfo:       userInfo,
		}
	}
	if err := writeJSON(path, &record); err != nil {
		return false, b.fail("track api user", err)
	}

	var summary keySummary
	if _, err := readJSON(b.summaryPath(apiKey), &summary); err != nil {
		return false, b.fail("track api user", err)
	}
	summary.TotalRequests++
	if !exists {
		summary.TotalUsers++
	}
	summary.LastUpdated = ts
	if err := writeJSON(b.summaryPath(apiKey), &summary); err != nil {
		return false, b.fail("track api user", err)
	}
	return true, nil
}

// loadKeyUsers reads every per-user record under one key directory. Caller
// must hold b.mu.
func (b *Backend) loadKeyUsers(keyDirName string) ([]models.APIUser, error) {
	dir := filepath.Join(b.apiUsersDir(), keyDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api_users dir: %w", err)
	}

	users := make([]models.APIUser, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || filepath.Ext(name) != ".json" {
			continue
		}
		var record models.APIUser
		ok, err := readJSON(filepath.Join(dir, name), &record)
		if err != nil {
			return nil, err
		}
		if ok {
			users = append(users, record)
		}
	}
	return users, nil
}

// loadAPIUsers gathers records for one key or, with an empty key, every key.
// Caller must hold b.mu.
func (b *Backend) loadAPIUsers(apiKey string) ([]models.APIUser, error) {
	if apiKey != "" {
		return b.loadKeyUsers(sanitize(apiKey))
	}

	entries, err := os.ReadDir(b.apiUsersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api_users dir: %w", err)
	}
	var all []models.APIUser
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		users, err := b.loadKeyUsers(entry.Name())
		if err != nil {
			return nil, err
		}
		all = append(all, users...)
	}
	return all, nil
}

// ListAPIUsers returns external users active since the cutoff (zero value:
// 30 days ago), most recent first.
func (b *Backend) ListAPIUsers(ctx context.Context, apiKey string, limit int, since time.Time) ([]*models.APIUser, error) {
	if since.IsZero() {
		since = now().AddDate(0, 0, -30)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.loadAPIUsers(apiKey)
	if err != nil {
		return nil, b.fail("list api users", err)
	}

	matched := records[:0]
	for _, record := range records {
		if !record.LastActive.Before(since) {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastActive.After(matched[j].LastActive)
	})
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*models.APIUser, len(matched))
	for i := range matched {
		out[i] = &matched[i]
	}
	return out, nil
}

// UsageStats aggregates activity for one or all keys over the given period.
// The 24h/7d active counts are always relative to now, whatever the period.
func (b *Backend) UsageStats(ctx context.Context, apiKey, period string) (*models.UsageStats, error) {
	nowTS := now()
	since := models.PeriodSince(period, nowTS)

	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.loadAPIUsers(apiKey)
	if err != nil {
		return nil, b.fail("usage stats", err)
	}
	return aggregateUsage(records, since, nowTS), nil
}

// aggregateUsage folds APIUser records into a usage report.
func aggregateUsage(records []models.APIUser, since, now time.Time) *models.UsageStats {
	stats := &models.UsageStats{PerKey: []models.KeyUsage{}}
	perKey := make(map[string]int)
	dayCutoff := now.Add(-24 * time.Hour)
	weekCutoff := now.AddDate(0, 0, -7)

	for _, record := range records {
		if !record.LastActive.Before(dayCutoff) {
			stats.Active24h++
		}
		if !record.LastActive.Before(weekCutoff) {
			stats.Active7d++
		}
		if record.LastActive.Before(since) {
			continue
		}
		stats.TotalUsers++
		stats.TotalRequests += record.TotalRequests

		idx, ok := perKey[record.APIKey]
		if !ok {
			stats.PerKey = append(stats.PerKey, models.KeyUsage{APIKey: record.APIKey})
			idx = len(stats.PerKey) - 1
			perKey[record.APIKey] = idx
		}
		stats.PerKey[idx].TotalUsers++
		stats.PerKey[idx].TotalRequests += record.TotalRequests
	}
	return stats
}
