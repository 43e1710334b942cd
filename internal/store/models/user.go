// Package models defines the persisted record types for the Code Supporter
// backend. Each type is stored by both storage backends: the document backend
// maps the bson tags onto collection fields, the file backend serializes the
// json tags into the on-disk JSON tree. Models are pure data; business rules
// live in the storage implementations and the HTTP layer.
package models

import "time"

// User represents a registered account. Accounts are created once and never
// hard-deleted; LastLogin is bumped on every successful authentication.
type User struct {
	Username     string         `json:"username" bson:"username"`
	PasswordHash string         `json:"password,omitempty" bson:"password"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	LastLogin    *time.Time     `json:"last_login" bson:"last_login"`
	Settings     map[string]any `json:"settings" bson:"settings"`
}

// Sanitized returns a copy safe to hand to callers outside the storage layer:
// the password hash is stripped and the settings map is never nil.
func (u *User) Sanitized() *User {
	out := *u
	out.PasswordHash = ""
	if out.Settings == nil {
		out.Settings = map[string]any{}
	}
	return &out
}
