package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) users() *mongo.Collection {
	return b.db.Collection(colUsers)
}

// CreateUser registers a new account. The unique index on username turns a
// concurrent duplicate insert into a clean ErrAlreadyExists instead of a
// second account.
func (b *Backend) CreateUser(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalid
	}

	user := models.User{
		Username:     username,
		PasswordHash: auth.HashSecret(password),
		CreatedAt:    now(),
		LastLogin:    nil,
		Settings:     map[string]any{},
	}
	if _, err := b.users().InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrAlreadyExists
		}
		return b.fail("create user", err)
	}
	return nil
}

// Authenticate matches username and digest in one filter and bumps last_login
// atomically on the matched document.
func (b *Backend) Authenticate(ctx context.Context, username, password string) (bool, error) {
	filter := bson.M{"username": username, "password": auth.HashSecret(password)}
	update := bson.M{"$set": bson.M{"last_login": now()}}

	result, err := b.users().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, b.fail("authenticate", err)
	}
	return result.MatchedCount > 0, nil
}

// GetUser returns the account without its password hash, or (nil, nil).
func (b *Backend) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := b.users().FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, b.fail("get user", err)
	}
	return user.Sanitized(), nil
}

// UpdateSettings replaces the settings map wholesale.
func (b *Backend) UpdateSettings(ctx context.Context, username string, settings map[string]any) (bool, error) {
	if settings == nil {
		settings = map[string]any{}
	}
	result, err := b.users().UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"settings": settings}})
	if err != nil {
		return false, b.fail("update settings", err)
	}
	return result.MatchedCount > 0, nil
}

// ChangePassword re-authenticates via the filter: the update only matches
// when the old digest is correct.
func (b *Backend) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, store.ErrInvalid
	}
	result, err := b.users().UpdateOne(ctx,
		bson.M{"username": username, "password": auth.HashSecret(oldPassword)},
		bson.M{"$set": bson.M{"password": auth.HashSecret(newPassword)}})
	if err != nil {
		return false, b.fail("change password", err)
	}
	return result.MatchedCount > 0, nil
}
