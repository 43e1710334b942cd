package file

import (
	"context"
	"path/filepath"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) usersPath() string {
	return filepath.Join(b.dataDir, "users", "users.json")
}

// loadUsers reads the full account list. Caller must hold b.mu.
func (b *Backend) loadUsers() ([]models.User, error) {
	var users []models.User
	if _, err := readJSON(b.usersPath(), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers a new account with the legacy password digest.
func (b *Backend) CreateUser(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.loadUsers()
	if err != nil {
		return b.fail("create user", err)
	}
	for i := range users {
		if users[i].Username == username {
			return store.ErrAlreadyExists
		}
	}

	users = append(users, models.User{
		Username:     username,
		PasswordHash: auth.HashSecret(password),
		CreatedAt:    now(),
		LastLogin:    nil,
		Settings:     map[string]any{},
	})
	if err := writeJSON(b.usersPath(), users); err != nil {
		return b.fail("create user", err)
	}
	return nil
}

// Authenticate compares digests and records the login time on success.
func (b *Backend) Authenticate(ctx context.Context, username, password string) (bool, error) {
	hash := auth.HashSecret(password)

	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.loadUsers()
	if err != nil {
		return false, b.fail("authenticate", err)
	}
	for i := range users {
		if users[i].Username == username && users[i].PasswordHash == hash {
			ts := now()
			users[i].LastLogin = &ts
			if err := writeJSON(b.usersPath(), users); err != nil {
				return false, b.fail("authenticate", err)
			}
			return true, nil
		}
	}
	return false, nil
}

// GetUser returns the account without its password hash, or (nil, nil).
func (b *Backend) GetUser(ctx context.Context, username string) (*models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.loadUsers()
	if err != nil {
		return nil, b.fail("get user", err)
	}
	for i := range users {
		if users[i].Username == username {
			return users[i].Sanitized(), nil
		}
	}
	return nil, nil
}

// UpdateSettings replaces the settings map wholesale.
func (b *Backend) UpdateSettings(ctx context.Context, username string, settings map[string]any) (bool, error) {
	if settings == nil {
		settings = map[string]any{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.loadUsers()
	if err != nil {
		return false, b.fail("update settings", err)
	}
	for i := range users {
		if users[i].Username == username {
			users[i].Settings = settings
			if err := writeJSON(b.usersPath(), users); err != nil {
				return false, b.fail("update settings", err)
			}
			return true, nil
		}
	}
	return false, nil
}

// ChangePassword re-authenticates with the old password before storing the
// new digest.
func (b *Backend) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, store.ErrInvalid
	}
	oldHash := auth.HashSecret(oldPassword)

	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.loadUsers()
	if err != nil {
		return false, b.fail("change password", err)
	}
	for i := range users {
		if users[i].Username == username && users[i].PasswordHash == oldHash {
			users[i].PasswordHash = auth.HashSecret(newPassword)
			if err := writeJSON(b.usersPath(), users); err != nil {
				return false, b.fail("change password", err)
			}
			return true, nil
		}
	}
	return false, nil
}
