package models

import "time"

// Message roles. Messages are append-only and never mutated once written.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidRole reports whether role is one of the three accepted message roles.
func ValidRole(role string) bool {
	return role == RoleSystem || role == RoleUser || role == RoleAssistant
}

// PreviewLength is the maximum number of characters of the last message
// carried in a conversation summary.
const PreviewLength = 100

// Conversation is the metadata record for one chat thread. A conversation has
// exactly one owner; access control is owner-only. Deletion is a terminal
// soft state: deleted conversations disappear from listings and counts but
// remain retrievable by ID for audit.
type Conversation struct {
	ID        string     `json:"id" bson:"id"`
	Owner     string     `json:"owner" bson:"owner"`
	Title     string     `json:"title" bson:"title"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	Deleted   bool       `json:"deleted" bson:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// Message is a single turn inside a conversation, ordered by timestamp.
type Message struct {
	ID             string    `json:"id" bson:"id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	Role           string    `json:"role" bson:"role"`
	Content        string    `json:"content" bson:"content"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
}

// ConversationSummary is the listing shape: conversation metadata plus a
// preview of the latest message and the total message count.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message"`
}

// Preview truncates content to PreviewLength characters for summaries.
// Truncation is by rune so multi-byte text is never cut mid-character.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}
