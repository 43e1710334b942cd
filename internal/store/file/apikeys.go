package file

import (
	"context"
	"path/filepath"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func (b *Backend) apiKeysPath() string {
	return filepath.Join(b.dataDir, "api_keys", "api_keys.json")
}

// loadAPIKeys reads the full key list. Caller must hold b.mu.
func (b *Backend) loadAPIKeys() ([]models.APIKey, error) {
	var keys []models.APIKey
	if _, err := readJSON(b.apiKeysPath(), &keys); err != nil {
		return nil, err
	}
	return keys, nil
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

	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return "", "", b.fail("create api key", err)
	}
	keys = append(keys, models.APIKey{
		Key:         key,
		SecretHash:  auth.HashSecret(secret),
		Name:        name,
		Permissions: permissions,
		CreatedBy:   owner,
		Status:      models.APIKeyStatusActive,
		CreatedAt:   now(),
	})
	if err := writeJSON(b.apiKeysPath(), keys); err != nil {
		return "", "", b.fail("create api key", err)
	}
	return key, secret, nil
}

// VerifyAPIKey accepts only active keys and bumps their last-used timestamp.
func (b *Backend) VerifyAPIKey(ctx context.Context, key string) (bool, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return false, nil, b.fail("verify api key", err)
	}
	for i := range keys {
		if keys[i].Key == key && keys[i].Status == models.APIKeyStatusActive {
			ts := now()
			keys[i].LastUsed = &ts
			if err := writeJSON(b.apiKeysPath(), keys); err != nil {
				return false, nil, b.fail("verify api key", err)
			}
			return true, append([]string(nil), keys[i].Permissions...), nil
		}
	}
	return false, nil, nil
}

// GetAPIKey returns the record for any lifecycle state, soft-deleted keys
// included since they stay retrievable for audit, with the secret hash
// stripped.
func (b *Backend) GetAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return nil, b.fail("get api key", err)
	}
	for i := range keys {
		if keys[i].Key == key {
			return keys[i].Sanitized(), nil
		}
	}
	return nil, nil
}

// ListAPIKeys returns non-deleted keys, optionally scoped to one creator.
func (b *Backend) ListAPIKeys(ctx context.Context, createdBy string) ([]*models.APIKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return nil, b.fail("list api keys", err)
	}
	out := make([]*models.APIKey, 0)
	for i := range keys {
		if keys[i].Status == models.APIKeyStatusDeleted {
			continue
		}
		if createdBy != "" && !keys[i].IsOwnedBy(createdBy) {
			continue
		}
		out = append(out, keys[i].Sanitized())
	}
	return out, nil
}

// UpdateAPIKeyStatus switches a key between active and disabled. Deleted keys
// are past their terminal transition and never change again.
func (b *Backend) UpdateAPIKeyStatus(ctx context.Context, key, status, updatedBy string) (bool, error) {
	if status != models.APIKeyStatusActive && status != models.APIKeyStatusDisabled {
		return false, store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return false, b.fail("update api key status", err)
	}
	for i := range keys {
		if keys[i].Key != key {
			continue
		}
		if keys[i].Status == models.APIKeyStatusDeleted {
			return false, nil
		}
		ts := now()
		keys[i].Status = status
		keys[i].UpdatedAt = &ts
		keys[i].UpdatedBy = &updatedBy
		if err := writeJSON(b.apiKeysPath(), keys); err != nil {
			return false, b.fail("update api key status", err)
		}
		return true, nil
	}
	return false, nil
}

// UpdateAPIKeyPermissions replaces the permission set of a live key.
func (b *Backend) UpdateAPIKeyPermissions(ctx context.Context, key string, permissions []string, updatedBy string) (bool, error) {
	if len(permissions) == 0 {
		return false, store.ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return false, b.fail("update api key permissions", err)
	}
	for i := range keys {
		if keys[i].Key != key {
			continue
		}
		if keys[i].Status == models.APIKeyStatusDeleted {
			return false, nil
		}
		ts := now()
		keys[i].Permissions = append([]string(nil), permissions...)
		keys[i].UpdatedAt = &ts
		keys[i].UpdatedBy = &updatedBy
		if err := writeJSON(b.apiKeysPath(), keys); err != nil {
			return false, b.fail("update api key permissions", err)
		}
		return true, nil
	}
	return false, nil
}

// DeleteAPIKey soft-deletes the key; the transition is terminal.
func (b *Backend) DeleteAPIKey(ctx context.Context, key, deletedBy string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.loadAPIKeys()
	if err != nil {
		return false, b.fail("delete api key", err)
	}
	for i := range keys {
		if keys[i].Key != key {
			continue
		}
		if keys[i].Status == models.APIKeyStatusDeleted {
			return false, nil
		}
		ts := now()
		keys[i].Status = models.APIKeyStatusDeleted
		keys[i].DeletedAt = &ts
		keys[i].DeletedBy = &deletedBy
		if err := writeJSON(b.apiKeysPath(), keys); err != nil {
			return false, b.fail("delete api key", err)
		}
		return true, nil
	}
	return false, nil
}
