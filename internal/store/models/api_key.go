package models

import "time"

// API key lifecycle states. Active and disabled keys may transition into each
// other; deleted is terminal.
const (
	APIKeyStatusActive   = "active"
	APIKeyStatusDisabled = "disabled"
	APIKeyStatusDeleted  = "deleted"
)

// DefaultPermissions is granted when a key is created without an explicit
// permission set.
var DefaultPermissions = []string{"chat"}

// APIKey represents an integration credential. The raw secret is returned to
// the creator exactly once; only its hash is ever stored.
type APIKey struct {
	Key         string     `json:"key" bson:"key"`
	SecretHash  string     `json:"secret,omitempty" bson:"secret"`
	Name        string     `json:"name" bson:"name"`
	Permissions []string   `json:"permissions" bson:"permissions"`
	CreatedBy   *string    `json:"created_by" bson:"created_by"`
	Status      string     `json:"status" bson:"status"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	LastUsed    *time.Time `json:"last_used" bson:"last_used"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
	UpdatedBy   *string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	DeletedBy   *string    `json:"deleted_by,omitempty" bson:"deleted_by,omitempty"`
}

// Sanitized returns a copy with the secret hash stripped for listing and
// lookup responses.
func (k *APIKey) Sanitized() *APIKey {
	out := *k
	out.SecretHash = ""
	return &out
}

// HasPermission reports whether the key carries the given capability string.
func (k *APIKey) HasPermission(permission string) bool {
	for _, p := range k.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// IsOwnedBy reports whether the key was created by the given user. Keys with
// no recorded creator belong to nobody.
func (k *APIKey) IsOwnedBy(username string) bool {
	return k.CreatedBy != nil && *k.CreatedBy == username
}
