package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) apiUsers() *mongo.Collection {
	return b.db.Collection(colAPIUsers)
}

// TrackAPIUser upserts the activity record for (apiKey, externalUserID). The
// unique compound index means two concurrent first requests race into one
// document instead of two.
func (b *Backend) TrackAPIUser(ctx context.Context, apiKey, externalUserID string, userInfo map[string]any) (bool, error) {
	if apiKey == "" || externalUserID == "" {
		return false, store.ErrInvalid
	}

	ts := now()
	set := bson.M{"last_active": ts}
	if userInfo != nil {
		set["user_info"] = userInfo
	}
	update := bson.M{
		"$inc":         bson.M{"total_requests": 1},
		"$set":         set,
		"$setOnInsert": bson.M{"api_key": apiKey, "external_user_id": externalUserID, "first_seen": ts},
	}

	_, err := b.apiUsers().UpdateOne(ctx,
		bson.M{"api_key": apiKey, "external_user_id": externalUserID},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		// The unique index can still surface a duplicate-key error when two
		// upserts insert simultaneously; one retry lands on the update path.
		if mongo.IsDuplicateKeyError(err) {
			_, err = b.apiUsers().UpdateOne(ctx,
				bson.M{"api_key": apiKey, "external_user_id": externalUserID},
				update)
		}
		if err != nil {
			return false, b.fail("track api user", err)
		}
	}
	return true, nil
}

// ListAPIUsers returns external users active since the cutoff (zero value:
// 30 days ago), most recent first.
func (b *Backend) ListAPIUsers(ctx context.Context, apiKey string, limit int, since time.Time) ([]*models.APIUser, error) {
	if since.IsZero() {
		since = now().AddDate(0, 0, -30)
	}

	filter := bson.M{"last_active": bson.M{"$gte": since}}
	if apiKey != "" {
		filter["api_key"] = apiKey
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_active", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := b.apiUsers().Find(ctx, filter, opts)
	if err != nil {
		return nil, b.fail("list api users", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.APIUser, 0)
	for cursor.Next(ctx) {
		var record models.APIUser
		if err := cursor.Decode(&record); err != nil {
			return nil, b.fail("list api users", err)
		}
		out = append(out, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, b.fail("list api users", err)
	}
	return out, nil
}

// UsageStats aggregates activity for one or all keys over the given period.
// The 24h/7d active counts are always relative to now, whatever the period.
func (b *Backend) UsageStats(ctx context.Context, apiKey, period string) (*models.UsageStats, error) {
	nowTS := now()
	since := models.PeriodSince(period, nowTS)

	filter := bson.M{}
	if apiKey != "" {
		filter["api_key"] = apiKey
	}
	cursor, err := b.apiUsers().Find(ctx, filter)
	if err != nil {
		return nil, b.fail("usage stats", err)
	}
	defer cursor.Close(ctx)

	stats := &models.UsageStats{PerKey: []models.KeyUsage{}}
	perKey := make(map[string]int)
	dayCutoff := nowTS.Add(-24 * time.Hour)
	weekCutoff := nowTS.AddDate(0, 0, -7)

	for cursor.Next(ctx) {
		var record models.APIUser
		if err := cursor.Decode(&record); err != nil {
			return nil, b.fail("usage stats", err)
		}
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
	if err := cursor.Err(); err != nil {
		return nil, b.fail("usage stats", err)
	}
	return stats, nil
}
