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

func (b *Backend) conversations() *mongo.Collection {
	return b.db.Collection(colConversations)
}

func (b *Backend) messages() *mongo.Collection {
	return b.db.Collection(colMessages)
}

// CreateConversation starts a new conversation for owner. An omitted title
// defaults to one carrying the creation date.
func (b *Backend) CreateConversation(ctx context.Context, owner, title string) (string, error) {
	if owner == "" {
		return "", store.ErrInvalid
	}

	ts := now()
	if title == "" {
		title = "Conversation " + ts.Format("2006-01-02 15:04")
	}
	conv := models.Conversation{
		ID:        auth.GenerateToken(),
		Owner:     owner,
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := b.conversations().InsertOne(ctx, conv); err != nil {
		return "", b.fail("create conversation", err)
	}
	return conv.ID, nil
}

// AppendMessage adds one turn to the log and bumps the conversation's
// updated-at timestamp. The message insert happens only when the conversation
// exists, so orphan messages cannot accumulate.
func (b *Backend) AppendMessage(ctx context.Context, conversationID, role, content string) (bool, error) {
	if !models.ValidRole(role) {
		return false, store.ErrInvalid
	}

	ts := now()
	result, err := b.conversations().UpdateOne(ctx,
		bson.M{"id": conversationID},
		bson.M{"$set": bson.M{"updated_at": ts}})
	if err != nil {
		return false, b.fail("append message", err)
	}
	if result.MatchedCount == 0 {
		return false, nil
	}

	msg := models.Message{
		ID:             auth.GenerateToken(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      ts,
	}
	if _, err := b.messages().InsertOne(ctx, msg); err != nil {
		return false, b.fail("append message", err)
	}
	return true, nil
}

// ListConversations returns the owner's non-deleted conversations ordered by
// last activity, each with message count and a preview of the latest message.
func (b *Backend) ListConversations(ctx context.Context, owner string, limit, offset int) ([]*models.ConversationSummary, error) {
	filter := bson.M{"owner": owner, "deleted": bson.M{"$ne": true}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := b.conversations().Find(ctx, filter, opts)
	if err != nil {
		return nil, b.fail("list conversations", err)
	}
	defer cursor.Close(ctx)

	summaries := make([]*models.ConversationSummary, 0)
	for cursor.Next(ctx) {
		var conv models.Conversation
		if err := cursor.Decode(&conv); err != nil {
			return nil, b.fail("list conversations", err)
		}

		count, err := b.messages().CountDocuments(ctx, bson.M{"conversation_id": conv.ID})
		if err != nil {
			return nil, b.fail("list conversations", err)
		}

		summary := &models.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: int(count),
		}
		var last models.Message
		err = b.messages().FindOne(ctx,
			bson.M{"conversation_id": conv.ID},
			options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})).Decode(&last)
		if err == nil {
			summary.LastMessage = models.Preview(last.Content)
		} else if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, b.fail("list conversations", err)
		}
		summaries = append(summaries, summary)
	}
	if err := cursor.Err(); err != nil {
		return nil, b.fail("list conversations", err)
	}
	return summaries, nil
}

// CountConversations counts the owner's non-deleted conversations.
func (b *Backend) CountConversations(ctx context.Context, owner string) (int, error) {
	count, err := b.conversations().CountDocuments(ctx,
		bson.M{"owner": owner, "deleted": bson.M{"$ne": true}})
	if err != nil {
		return 0, b.fail("count conversations", err)
	}
	return int(count), nil
}

// CheckConversationAccess reports whether the conversation, active or
// soft-deleted, belongs to owner.
func (b *Backend) CheckConversationAccess(ctx context.Context, owner, conversationID string) (bool, error) {
	count, err := b.conversations().CountDocuments(ctx,
		bson.M{"id": conversationID, "owner": owner})
	if err != nil {
		return false, b.fail("check conversation access", err)
	}
	return count > 0, nil
}

// GetConversation returns the record by ID, including soft-deleted ones, or
// (nil, nil).
func (b *Backend) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := b.conversations().FindOne(ctx, bson.M{"id": conversationID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, b.fail("get conversation", err)
	}
	return &conv, nil
}

// GetMessages returns the conversation's log ordered by timestamp ascending.
func (b *Backend) GetMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	cursor, err := b.messages().Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, b.fail("get messages", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.Message, 0)
	for cursor.Next(ctx) {
		var msg models.Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, b.fail("get messages", err)
		}
		out = append(out, &msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, b.fail("get messages", err)
	}
	return out, nil
}

// UpdateConversationTitle renames the conversation. Title is the only field
// callers may change.
func (b *Backend) UpdateConversationTitle(ctx context.Context, conversationID, title string) (bool, error) {
	if title == "" {
		return false, store.ErrInvalid
	}

	result, err := b.conversations().UpdateOne(ctx,
		bson.M{"id": conversationID},
		bson.M{"$set": bson.M{"title": title, "updated_at": now()}})
	if err != nil {
		return false, b.fail("update conversation", err)
	}
	return result.MatchedCount > 0, nil
}

// DeleteConversation soft-deletes one conversation. Deleting an already
// deleted conversation reports success.
func (b *Backend) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	result, err := b.conversations().UpdateOne(ctx,
		bson.M{"id": conversationID, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now()}})
	if err != nil {
		return false, b.fail("delete conversation", err)
	}
	if result.MatchedCount > 0 {
		return true, nil
	}

	count, err := b.conversations().CountDocuments(ctx, bson.M{"id": conversationID})
	if err != nil {
		return false, b.fail("delete conversation", err)
	}
	return count > 0, nil
}

// DeleteAllConversations soft-deletes every conversation of one owner.
func (b *Backend) DeleteAllConversations(ctx context.Context, owner string) (bool, error) {
	_, err := b.conversations().UpdateMany(ctx,
		bson.M{"owner": owner, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now()}})
	if err != nil {
		return false, b.fail("delete all conversations", err)
	}
	return true, nil
}
