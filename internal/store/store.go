// Package store defines the Backend interface implemented by the two storage
// backends (document database and local file tree) and the selection logic
// that picks one of them at startup.
//
// Backends are added by implementing Backend and registering with the factory
// via an init() function in the backend's own package:
//
//	func init() {
//	    store.Register("mybackend", func(ctx context.Context, cfg *config.StorageConfig) (store.Backend, error) {
//	        return New(ctx, cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
// Selection happens exactly once per process: Open tries the document backend
// when a connection string is configured and falls back permanently to the
// file backend on any failure. There is no per-call backend dispatch and no
// later promotion back to the document backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/code-supporter/code-supporter/internal/store/models"
)

// Sentinel errors surfaced by store operations. Anything else returned by a
// backend is a storage I/O failure, logged at the boundary and presented to
// HTTP callers as a generic failure.
var (
	// ErrAlreadyExists reports a duplicate unique key (username or API key).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid reports a malformed or missing required field.
	ErrInvalid = errors.New("invalid argument")
)

// UserStore manages registered accounts.
type UserStore interface {
	// CreateUser registers a new account. Returns ErrAlreadyExists when the
	// username is taken; the existing account is left untouched.
	CreateUser(ctx context.Context, username, password string) error

	// Authenticate verifies a username/password pair. On success it updates
	// the account's last-login timestamp as a side effect. A missing user and
	// a wrong password are indistinguishable to the caller.
	Authenticate(ctx context.Context, username, password string) (bool, error)

	// GetUser returns the account with the password hash stripped, or
	// (nil, nil) when no such user exists.
	GetUser(ctx context.Context, username string) (*models.User, error)

	// UpdateSettings replaces the account's settings map wholesale.
	UpdateSettings(ctx context.Context, username string, settings map[string]any) (bool, error)

	// ChangePassword re-authenticates with oldPassword before storing the
	// hash of newPassword.
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error)
}

// APIKeyStore manages integration credentials.
type APIKeyStore interface {
	// CreateAPIKey generates a key/secret pair, stores the record with only
	// the secret's hash, and returns both raw values. This is the only time
	// the secret is ever available.
	CreateAPIKey(ctx context.Context, name string, permissions []string, createdBy string) (key, secret string, err error)

	// VerifyAPIKey reports whether the key exists with active status and, if
	// so, its permission set. Disabled and deleted keys verify as invalid.
	// On success the key's last-used timestamp is updated.
	VerifyAPIKey(ctx context.Context, key string) (bool, []string, error)

	// GetAPIKey returns the key record with the secret hash stripped, or
	// (nil, nil) when unknown.
	GetAPIKey(ctx context.Context, key string) (*models.APIKey, error)

	// ListAPIKeys returns key records (secret hashes stripped), optionally
	// filtered to one creator. Soft-deleted keys are excluded.
	ListAPIKeys(ctx context.Context, createdBy string) ([]*models.APIKey, error)

	// UpdateAPIKeyStatus switches a key between active and disabled. Deleted
	// keys never transition again.
	UpdateAPIKeyStatus(ctx context.Context, key, status, updatedBy string) (bool, error)

	// UpdateAPIKeyPermissions replaces the key's permission set.
	UpdateAPIKeyPermissions(ctx context.Context, key string, permissions []string, updatedBy string) (bool, error)

	// DeleteAPIKey soft-deletes the key. The deletion is terminal.
	DeleteAPIKey(ctx context.Context, key, deletedBy string) (bool, error)
}

// ConversationStore manages conversation metadata and ordered message logs.
//
// Ownership checks for mutations are deliberately the caller's job: the HTTP
// layer gates every read/update/delete with CheckConversationAccess before
// invoking the operation, mirroring where the original system drew that
// boundary.
type ConversationStore interface {
	// CreateConversation starts a new conversation and returns its ID. An
	// empty title defaults to one carrying the current date.
	CreateConversation(ctx context.Context, owner, title string) (string, error)

	// AppendMessage appends one turn to the conversation's log and bumps the
	// conversation's updated-at timestamp. Returns (false, nil) when the
	// conversation does not exist.
	AppendMessage(ctx context.Context, conversationID, role, content string) (bool, error)

	// ListConversations returns the owner's conversations, newest activity
	// first, excluding soft-deleted ones. Each summary carries the latest
	// message preview and the message count.
	ListConversations(ctx context.Context, owner string, limit, offset int) ([]*models.ConversationSummary, error)

	// CountConversations counts the owner's non-deleted conversations.
	CountConversations(ctx context.Context, owner string) (int, error)

	// CheckConversationAccess reports whether a conversation with that ID,
	// active or soft-deleted, exists under the given owner.
	CheckConversationAccess(ctx context.Context, owner, conversationID string) (bool, error)

	// GetConversation returns the conversation record by ID, including
	// soft-deleted ones, or (nil, nil) when unknown.
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)

	// GetMessages returns the conversation's messages ordered by timestamp
	// ascending.
	GetMessages(ctx context.Context, conversationID string) ([]*models.Message, error)

	// UpdateConversationTitle renames the conversation and bumps updated-at.
	// Title is the only mutable conversation field.
	UpdateConversationTitle(ctx context.Context, conversationID, title string) (bool, error)

	// DeleteConversation soft-deletes one conversation.
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)

	// DeleteAllConversations soft-deletes every conversation of one owner.
	DeleteAllConversations(ctx context.Context, owner string) (bool, error)
}

// UsageStore aggregates external-user activity per API key.
type UsageStore interface {
	// TrackAPIUser upserts the (apiKey, externalUserID) record: first
	// sighting inserts with a request count of one, every further sighting
	// increments the count, advances last-active, and replaces the opaque
	// user info when supplied.
	TrackAPIUser(ctx context.Context, apiKey, externalUserID string, userInfo map[string]any) (bool, error)

	// ListAPIUsers returns tracked external users with last activity at or
	// after since (zero value: 30 days ago), most recently active first,
	// truncated to limit. An empty apiKey spans all keys.
	ListAPIUsers(ctx context.Context, apiKey string, limit int, since time.Time) ([]*models.APIUser, error)

	// UsageStats aggregates activity for one or all keys over the given
	// period (day, week, month, all).
	UsageStats(ctx context.Context, apiKey, period string) (*models.UsageStats, error)
}

// Backend is the uniform storage interface handed to the rest of the
// application. Exactly one implementation is live per process.
type Backend interface {
	UserStore
	APIKeyStore
	ConversationStore
	UsageStore

	// Kind identifies the selected backend ("mongo" or "file").
	Kind() string

	// Close releases backend resources.
	Close(ctx context.Context) error
}
