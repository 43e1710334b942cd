package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) conversationsDir() string {
	return filepath.Join(b.dataDir, "conversations")
}

func (b *Backend) ownerDir(owner string) string {
	return filepath.Join(b.conversationsDir(), sanitize(owner))
}

func (b *Backend) metadataPath(owner, conversationID string) string {
	return filepath.Join(b.ownerDir(owner), "metadata", sanitize(conversationID)+".json")
}

func (b *Backend) messagesPath(owner, conversationID string) string {
	return filepath.Join(b.ownerDir(owner), sanitize(conversationID)+".json")
}

func (b *Backend) indexPath() string {
	return filepath.Join(b.conversationsDir(), "_index.json")
}

// loadIndex reads the conversation-ID-to-owner index. Caller must hold b.mu.
func (b *Backend) loadIndex() (map[string]string, error) {
	index := make(map[string]string)
	if _, err := readJSON(b.indexPath(), &index); err != nil {
		return nil, err
	}
	return index, nil
}

// resolveOwner finds which user a conversation belongs to. The index makes
// this a single lookup; when an entry is missing (data written before the
// index existed, or a lost index file) it falls back to scanning every user
// directory and repairs the index on a hit. Caller must hold b.mu.
func (b *Backend) resolveOwner(conversationID string) (string, error) {
	index, err := b.loadIndex()
	if err != nil {
		return "", err
	}
	if owner, ok := index[conversationID]; ok {
		return owner, nil
	}

	entries, err := os.ReadDir(b.conversationsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("scan conversations dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var conv models.Conversation
		ok, err := readJSON(filepath.Join(b.conversationsDir(), entry.Name(), "metadata", sanitize(conversationID)+".json"), &conv)
		if err != nil {
			return "", err
		}
		if ok && conv.ID == conversationID {
			index[conversationID] = conv.Owner
			if err := writeJSON(b.indexPath(), index); err != nil {
				return "", err
			}
			return conv.Owner, nil
		}
	}
	return "", nil
}

// loadConversation reads one metadata record. Caller must hold b.mu.
func (b *Backend) loadConversation(conversationID string) (*models.Conversation, string, error) {
	owner, err := b.resolveOwner(conversationID)
	if err != nil || owner == "" {
		return nil, "", err
	}
	var conv models.Conversation
	ok, err := readJSON(b.metadataPath(owner, conversationID), &conv)
	if err != nil || !ok {
		return nil, "", err
	}
	return &conv, owner, nil
}

// CreateConversation starts a new conversation for owner. An omitted title
// defaults to one carrying the creation date.
func (b *Backend) CreateConversation(ctx context.Context, owner, title string) (string, error) {
	if owner == "" {
		return "", store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

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

	if err := writeJSON(b.metadataPath(owner, conv.ID), &conv); err != nil {
		return "", b.fail("create conversation", err)
	}
	if err := writeJSON(b.messagesPath(owner, conv.ID), []models.Message{}); err != nil {
		return "", b.fail("create conversation", err)
	}

	index, err := b.loadIndex()
	if err != nil {
		return "", b.fail("create conversation", err)
	}
	index[conv.ID] = owner
	if err := writeJSON(b.indexPath(), index); err != nil {
		return "", b.fail("create conversation", err)
	}
	return conv.ID, nil
}

// AppendMessage adds one turn to the log and bumps the conversation's
// updated-at timestamp.
func (b *Backend) AppendMessage(ctx context.Context, conversationID, role, content string) (bool, error) {
	if !models.ValidRole(role) {
		return false, store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conv, owner, err := b.loadConversation(conversationID)
	if err != nil {
		return false, b.fail("append message", err)
	}
	if conv == nil {
		return false, nil
	}

	var messages []models.Message
	if _, err := readJSON(b.messagesPath(owner, conversationID), &messages); err != nil {
		return false, b.fail("append message", err)
	}

	ts := now()
	messages = append(messages, models.Message{
		ID:             auth.GenerateToken(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      ts,
	})
	if err := writeJSON(b.messagesPath(owner, conversationID), messages); err != nil {
		return false, b.fail("append message", err)
	}

	conv.UpdatedAt = ts
	if err := writeJSON(b.metadataPath(owner, conversationID), conv); err != nil {
		return false, b.fail("append message", err)
	}
	return true, nil
}

// loadOwnerConversations reads every metadata record of one owner. Caller
// must hold b.mu.
func (b *Backend) loadOwnerConversations(owner string) ([]models.Conversation, error) {
	metaDir := filepath.Join(b.ownerDir(owner), "metadata")
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan metadata dir: %w", err)
	}

	convs := make([]models.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var conv models.Conversation
		ok, err := readJSON(filepath.Join(metaDir, entry.Name()), &conv)
		if err != nil {
			return nil, err
		}
		if ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// ListConversations returns the owner's non-deleted conversations ordered by
// last activity, each with message count and a preview of the latest message.
func (b *Backend) ListConversations(ctx context.Context, owner string, limit, offset int) ([]*models.ConversationSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	convs, err := b.loadOwnerConversations(owner)
	if err != nil {
		return nil, b.fail("list conversations", err)
	}

	active := convs[:0]
	for _, conv := range convs {
		if !conv.Deleted {
			active = append(active, conv)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].UpdatedAt.After(active[j].UpdatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset > len(active) {
		offset = len(active)
	}
	active = active[offset:]
	if limit > 0 && limit < len(active) {
		active = active[:limit]
	}

	summaries := make([]*models.ConversationSummary, 0, len(active))
	for _, conv := range active {
		var messages []models.Message
		if _, err := readJSON(b.messagesPath(owner, conv.ID), &messages); err != nil {
			return nil, b.fail("list conversations", err)
		}
		summary := &models.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(messages),
		}
		if len(messages) > 0 {
			summary.LastMessage = models.Preview(messages[len(messages)-1].Content)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// CountConversations counts the owner's non-deleted conversations.
func (b *Backend) CountConversations(ctx context.Context, owner string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	convs, err := b.loadOwnerConversations(owner)
	if err != nil {
		return 0, b.fail("count conversations", err)
	}
	count := 0
	for _, conv := range convs {
		if !conv.Deleted {
			count++
		}
	}
	return count, nil
}

// CheckConversationAccess reports whether the conversation, active or
// soft-deleted, belongs to owner.
func (b *Backend) CheckConversationAccess(ctx context.Context, owner, conversationID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, _, err := b.loadConversation(conversationID)
	if err != nil {
		return false, b.fail("check conversation access", err)
	}
	return conv != nil && conv.Owner == owner, nil
}

// GetConversation returns the record by ID, including soft-deleted ones.
func (b *Backend) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, _, err := b.loadConversation(conversationID)
	if err != nil {
		return nil, b.fail("get conversation", err)
	}
	return conv, nil
}

// GetMessages returns the conversation's log ordered by timestamp ascending.
func (b *Backend) GetMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, owner, err := b.loadConversation(conversationID)
	if err != nil {
		return nil, b.fail("get messages", err)
	}
	if conv == nil {
		return []*models.Message{}, nil
	}

	var messages []models.Message
	if _, err := readJSON(b.messagesPath(owner, conversationID), &messages); err != nil {
		return nil, b.fail("get messages", err)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	out := make([]*models.Message, len(messages))
	for i := range messages {
		out[i] = &messages[i]
	}
	return out, nil
}

// UpdateConversationTitle renames the conversation. Title is the only field
// callers may change.
func (b *Backend) UpdateConversationTitle(ctx context.Context, conversationID, title string) (bool, error) {
	if title == "" {
		return false, store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conv, owner, err := b.loadConversation(conversationID)
	if err != nil {
		return false, b.fail("update conversation", err)
	}
	if conv == nil {
		return false, nil
	}

	conv.Title = title
	conv.UpdatedAt = now()
	if err := writeJSON(b.metadataPath(owner, conversationID), conv); err != nil {
		return false, b.fail("update conversation", err)
	}
	return true, nil
}

// DeleteConversation soft-deletes one conversation.
func (b *Backend) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, owner, err := b.loadConversation(conversationID)
	if err != nil {
		return false, b.fail("delete conversation", err)
	}
	if conv == nil {
		return false, nil
	}
	if conv.Deleted {
		return true, nil
	}

	ts := now()
	conv.Deleted = true
	conv.DeletedAt = &ts
	if err := writeJSON(b.metadataPath(owner, conversationID), conv); err != nil {
		return false, b.fail("delete conversation", err)
	}
	return true, nil
}

// DeleteAllConversations soft-deletes every conversation of one owner.
func (b *Backend) DeleteAllConversations(ctx context.Context, owner string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	convs, err := b.loadOwnerConversations(owner)
	if err != nil {
		return false, b.fail("delete all conversations", err)
	}

	ts := now()
	for i := range convs {
		if convs[i].Deleted {
			continue
		}
		convs[i].Deleted = true
		convs[i].DeletedAt = &ts
		if err := writeJSON(b.metadataPath(owner, convs[i].ID), &convs[i]); err != nil {
			return false, b.fail("delete all conversations", err)
		}
	}
	return true, nil
}
