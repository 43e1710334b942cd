package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) apiKeys() *mongo.Collection {
	return b.db.Collection(colAPIKeys)
}

// CreateAPIKey generates a key/secret pair and persists the record with only
// the secret's digest. The raw secret is returned here and never again.
func (b *Backend) CreateAPIKey(ctx context.Context, name string, permissions []string, createdBy string) (string, string, error) {
	if name == "" {
		return "", "", store.ErrInvalid
	}
	if len(permissions) == 0 {
		permissions = append([]string(nil), models.DefaultPermissions...)
	}

	key := auth.GenerateToken()
	secret := auth.GenerateToken()

	var owner *string
	if createdBy != "" {
		owner = &createdBy
	}

	record := models.APIKey{
		Key:         key,
		SecretHash:  auth.HashSecret(secret),
		Name:        name,
		Permissions: permissions,
		CreatedBy:   owner,
		Status:      models.APIKeyStatusActive,
		CreatedAt:   now(),
	}
	if _, err := b.apiKeys().InsertOne(ctx, record); err != nil {
		return "", "", b.fail("create api key", err)
	}
	return key, secret, nil
}

// VerifyAPIKey accepts only active keys; the filter and last-used bump are one
// atomic document update.
func (b *Backend) VerifyAPIKey(ctx context.Context, key string) (bool, []string, error) {
	filter := bson.M{"key": key, "status": models.APIKeyStatusActive}
	update := bson.M{"$set": bson.M{"last_used": now()}}

	var record models.APIKey
	err := b.apiKeys().FindOneAndUpdate(ctx, filter, update).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, b.fail("verify api key", err)
	}
	return true, record.Permissions, nil
}

// GetAPIKey returns the record for any lifecycle state with the secret hash
// stripped, or (nil, nil).
func (b *Backend) GetAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	var record models.APIKey
	err := b.apiKeys().FindOne(ctx, bson.M{"key": key}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, b.fail("get api key", err)
	}
	return record.Sanitized(), nil
}

// ListAPIKeys returns non-deleted keys, optionally scoped to one creator.
func (b *Backend) ListAPIKeys(ctx context.Context, createdBy string) ([]*models.APIKey, error) {
	filter := bson.M{"status": bson.M{"$ne": models.APIKeyStatusDeleted}}
	if createdBy != "" {
		filter["created_by"] = createdBy
	}

	cursor, err := b.apiKeys().Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, b.fail("list api keys", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.APIKey, 0)
	for cursor.Next(ctx) {
		var record models.APIKey
		if err := cursor.Decode(&record); err != nil {
			return nil, b.fail("list api keys", err)
		}
		out = append(out, record.Sanitized())
	}
	if err := cursor.Err(); err != nil {
		return nil, b.fail("list api keys", err)
	}
	return out, nil
}

// UpdateAPIKeyStatus switches a key between active and disabled. The filter
// excludes deleted keys, which are past their terminal transition.
func (b *Backend) UpdateAPIKeyStatus(ctx context.Context, key, status, updatedBy string) (bool, error) {
	if status != models.APIKeyStatusActive && status != models.APIKeyStatusDisabled {
		return false, store.ErrInvalid
	}

	result, err := b.apiKeys().UpdateOne(ctx,
		bson.M{"key": key, "status": bson.M{"$ne": models.APIKeyStatusDeleted}},
		bson.M{"$set": bson.M{
			"status":     status,
			"updated_at": now(),
			"updated_by": updatedBy,
		}})
	if err != nil {
		return false, b.fail("update api key status", err)
	}
	return result.MatchedCount > 0, nil
}

// UpdateAPIKeyPermissions replaces the permission set of a live key.
func (b *Backend) UpdateAPIKeyPermissions(ctx context.Context, key string, permissions []string, updatedBy string) (bool, error) {
	if len(permissions) == 0 {
		return false, store.ErrInvalid
	}

	result, err := b.apiKeys().UpdateOne(ctx,
		bson.M{"key": key, "status": bson.M{"$ne": models.APIKeyStatusDeleted}},
		bson.M{"$set": bson.M{
			"permissions": permissions,
			"updated_at":  now(),
			"updated_by":  updatedBy,
		}})
	if err != nil {
		return false, b.fail("update api key permissions", err)
	}
	return result.MatchedCount > 0, nil
}

// DeleteAPIKey soft-deletes the key; the transition is terminal.
func (b *Backend) DeleteAPIKey(ctx context.Context, key, deletedBy string) (bool, error) {
	result, err := b.apiKeys().UpdateOne(ctx,
		bson.M{"key": key, "status": bson.M{"$ne": models.APIKeyStatusDeleted}},
		bson.M{"$set": bson.M{
			"status":     models.APIKeyStatusDeleted,
			"deleted_at": now(),
			"deleted_by": deletedBy,
		}})
	if err != nil {
		return false, b.fail("delete api key", err)
	}
	return result.MatchedCount > 0, nil
}
