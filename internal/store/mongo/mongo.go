// Package mongo implements the document-database storage backend. It relies
// on the server's native guarantees for everything the file backend has to
// simulate: unique indices for usernames and API keys, a compound index for
// (api_key, external_user_id), and atomic single-document updates for the
// counters and timestamps written under concurrent requests.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/store"
)

func init() {
	store.Register(store.KindMongo, func(ctx context.Context, cfg *config.StorageConfig) (store.Backend, error) {
		return New(ctx, cfg)
	})
}

// Collection names.
const (
	colUsers         = "users"
	colAPIKeys       = "api_keys"
	colConversations = "conversations"
	colMessages      = "conversation_messages"
	colAPIUsers      = "api_users"
)

// Backend implements store.Backend on a MongoDB database.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to the configured server, verifies liveness with a ping, and
// ensures the indices the stores rely on. Any failure here makes the selector
// fall back to the file backend.
func New(ctx context.Context, cfg *config.StorageConfig) (*Backend, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	b := &Backend{
		client: client,
		db:     client.Database(cfg.MongoDatabase),
	}
	if err := b.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return b, nil
}

// ensureIndexes creates the indices idempotently; CreateMany is a no-op for
// indices that already exist with the same definition.
func (b *Backend) ensureIndexes(ctx context.Context) error {
	type indexSet struct {
		collection string
		models     []mongo.IndexModel
	}
	sets := []indexSet{
		{colUsers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{colAPIKeys, []mongo.IndexModel{
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{colConversations, []mongo.IndexModel{
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "updated_at", Value: -1}}},
		}},
		{colMessages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		}},
		{colAPIUsers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "api_key", Value: 1}, {Key: "external_user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "last_active", Value: -1}}},
		}},
	}
	for _, set := range sets {
		if _, err := b.db.Collection(set.collection).Indexes().CreateMany(ctx, set.models); err != nil {
			return fmt.Errorf("collection %s: %w", set.collection, err)
		}
	}
	return nil
}

// Kind identifies this backend.
func (b *Backend) Kind() string { return store.KindMongo }

// Close disconnects from the server.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// fail logs a storage I/O failure with context and returns it wrapped, the
// same funnel the file backend uses.
func (b *Backend) fail(op string, err error) error {
	slog.Error("document storage operation failed", "op", op, "error", err)
	return fmt.Errorf("document storage %s: %w", op, err)
}

// now returns the canonical timestamp for document writes.
func now() time.Time { return time.Now().UTC() }
