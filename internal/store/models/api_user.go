package models

import "time"

// APIUser tracks one external end user seen through one API key. The pair
// (APIKey, ExternalUserID) is unique; TotalRequests only increases and
// LastActive never moves backwards.
type APIUser struct {
	APIKey         string         `json:"api_key" bson:"api_key"`
	ExternalUserID string         `json:"user_id" bson:"external_user_id"`
	FirstSeen      time.Time      `json:"first_seen" bson:"first_seen"`
	LastActive     time.Time      `json:"last_active" bson:"last_active"`
	TotalRequests  int64          `json:"total_requests" bson:"total_requests"`
	UserInfo       map[string]any `json:"user_info,omitempty" bson:"user_info,omitempty"`
}

// Stats periods accepted by UsageStats.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

// PeriodSince translates a stats period into its cutoff instant. Unknown
// periods fall back to the month window, matching the 30-day listing default.
func PeriodSince(period string, now time.Time) time.Time {
	switch period {
	case PeriodDay:
		return now.Add(-24 * time.Hour)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodAll:
		return time.Time{}
	default:
		return now.AddDate(0, 0, -30)
	}
}

// KeyUsage is the per-key slice of a usage report.
type KeyUsage struct {
	APIKey        string `json:"api_key"`
	TotalUsers    int    `json:"total_users"`
	TotalRequests int64  `json:"total_requests"`
}

// UsageStats aggregates external-user activity across one or all API keys.
// Active24h and Active7d are always computed relative to "now", regardless of
// the period that scoped the rest of the report.
type UsageStats struct {
	TotalUsers    int        `json:"total_users"`
	TotalRequests int64      `json:"total_requests"`
	Active24h     int        `json:"active_24h"`
	Active7d      int        `json:"active_7d"`
	PerKey        []KeyUsage `json:"per_key"`
}
