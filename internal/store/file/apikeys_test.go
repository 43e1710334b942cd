package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func TestCreateAPIKey_Defaults(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()

	key, secret, err := b.CreateAPIKey(ctx, "my integration", nil, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, key, secret)

	record, err := b.GetAPIKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.APIKeyStatusActive, record.Status)
	assert.Equal(t, models.DefaultPermissions, record.Permissions)
	require.NotNil(t, record.CreatedBy)
	assert.Equal(t, "alice", *record.CreatedBy)
	assert.Empty(t, record.SecretHash, "lookups must not expose the secret hash")
}

func TestCreateAPIKey_SecretNeverStoredRaw(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)

	_, secret, err := b.CreateAPIKey(t.Context(), "integration", nil, "alice")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "api_keys", "api_keys.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret, "raw secret must never reach disk")
}

func TestCreateAPIKey_RequiresName(t *testing.T) {
	b := newTestBackend(t)
	_, _, err := b.CreateAPIKey(t.Context(), "", nil, "alice")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestVerifyAPIKey(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	key, _, err := b.CreateAPIKey(ctx, "integration", []string{"chat", "stats"}, "alice")
	require.NoError(t, err)

	valid, permissions, err := b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, []string{"chat", "stats"}, permissions)

	valid, _, err = b.VerifyAPIKey(ctx, "no-such-key")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyAPIKey_BumpsLastUsed(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	key, _, err := b.CreateAPIKey(ctx, "integration", nil, "alice")
	require.NoError(t, err)

	record, err := b.GetAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, record.LastUsed)

	_, _, err = b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)

	record, err = b.GetAPIKey(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, record.LastUsed)
}

func TestAPIKeyLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	key, _, err := b.CreateAPIKey(ctx, "integration", nil, "alice")
	require.NoError(t, err)

	// Disable: verification stops, record remains visible.
	ok, err := b.UpdateAPIKeyStatus(ctx, key, models.APIKeyStatusDisabled, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	valid, _, err := b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, valid, "disabled keys must not verify")

	// Re-enable.
	ok, err = b.UpdateAPIKeyStatus(ctx, key, models.APIKeyStatusActive, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	valid, _, err = b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, valid)

	// Delete: terminal.
	ok, err = b.DeleteAPIKey(ctx, key, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	valid, _, err = b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, valid)

	ok, err = b.UpdateAPIKeyStatus(ctx, key, models.APIKeyStatusActive, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "deleted keys cannot be reactivated")

	ok, err = b.UpdateAPIKeyPermissions(ctx, key, []string{"chat"}, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "deleted keys cannot change permissions")

	ok, err = b.DeleteAPIKey(ctx, key, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "double delete reports no change")

	// The record itself stays fetchable for audit.
	record, err := b.GetAPIKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.APIKeyStatusDeleted, record.Status)
	assert.NotNil(t, record.DeletedAt)
}

func TestUpdateAPIKeyStatus_RejectsUnknownStatus(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	key, _, err := b.CreateAPIKey(ctx, "integration", nil, "alice")
	require.NoError(t, err)

	_, err = b.UpdateAPIKeyStatus(ctx, key, "deleted", "alice")
	assert.ErrorIs(t, err, store.ErrInvalid, "delete must go through DeleteAPIKey")
	_, err = b.UpdateAPIKeyStatus(ctx, key, "frozen", "alice")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestUpdateAPIKeyPermissions(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	key, _, err := b.CreateAPIKey(ctx, "integration", nil, "alice")
	require.NoError(t, err)

	ok, err := b.UpdateAPIKeyPermissions(ctx, key, []string{"chat", "stats"}, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	_, permissions, err := b.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat", "stats"}, permissions)
}

func TestListAPIKeys(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()

	k1, _, err := b.CreateAPIKey(ctx, "alice one", nil, "alice")
	require.NoError(t, err)
	_, _, err = b.CreateAPIKey(ctx, "alice two", nil, "alice")
	require.NoError(t, err)
	_, _, err = b.CreateAPIKey(ctx, "bob one", nil, "bob")
	require.NoError(t, err)

	all, err := b.ListAPIKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, record := range all {
		assert.Empty(t, record.SecretHash)
	}

	alices, err := b.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alices, 2)

	// Deleted keys disappear from listings.
	_, err = b.DeleteAPIKey(ctx, k1, "alice")
	require.NoError(t, err)
	alices, err = b.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alices, 1)
}
