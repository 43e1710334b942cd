package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-supporter/code-supporter/internal/store"
)

func TestCreateUser_DuplicateUsername(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()

	require.NoError(t, b.CreateUser(ctx, "alice", "password1"))
	err := b.CreateUser(ctx, "alice", "different-password")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestCreateUser_RejectsEmptyFields(t *testing.T) {
	b := newTestBackend(t)
	assert.ErrorIs(t, b.CreateUser(t.Context(), "", "password"), store.ErrInvalid)
	assert.ErrorIs(t, b.CreateUser(t.Context(), "alice", ""), store.ErrInvalid)
}

func TestAuthenticate(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	require.NoError(t, b.CreateUser(ctx, "alice", "password1"))

	ok, err := b.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Authenticate(ctx, "nobody", "password1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticate_RecordsLastLogin(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	require.NoError(t, b.CreateUser(ctx, "alice", "password1"))

	user, err := b.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Nil(t, user.LastLogin, "fresh account has no login time")

	ok, err := b.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	require.True(t, ok)

	user, err = b.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)

	// A failed attempt must not move the timestamp.
	first := *user.LastLogin
	_, err = b.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	user, err = b.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, *user.LastLogin)
}

func TestGetUser_StripsPasswordHash(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	require.NoError(t, b.CreateUser(ctx, "alice", "password1"))

	user, err := b.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Empty(t, user.PasswordHash)
	assert.NotNil(t, user.Settings)
}

func TestGetUser_NotFound(t *testing.T) {
	b := newTestBackend(t)
	user, err := b.GetUser(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateSettings_WholesaleReplace(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	require.NoError(t, b.CreateUser(ctx, "alice", "password1"))

	ok, err := b.UpdateSettings(ctx, "alice", map[string]any{"theme": "dark", "lang": "fr"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.UpdateSettings(ctx, "alice", map[string]any{"theme": "light"})
	require.NoError(t, err)
	require.True(t, ok)

	user, err := b.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "light"}, user.Settings, "old keys must not survive the replace")
}

func TestUpdateSettings_UnknownUser(t *testing.T) {
	b := newTestBackend(t)
	ok, err := b.UpdateSettings(t.Context(), "nobody", map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangePassword(t *testing.T) {
	b := newTestBackend(t)
	ctx := t.Context()
	require.NoError(t, b.CreateUser(ctx, "alice", "old-password"))

	ok, err := b.ChangePassword(ctx, "alice", "wrong", "new-password")
	require.NoError(t, err)
	assert.False(t, ok, "wrong current password must be rejected")

	ok, err = b.ChangePassword(ctx, "alice", "old-password", "new-password")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Authenticate(ctx, "alice", "old-password")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.Authenticate(ctx, "alice", "new-password")
	require.NoError(t, err)
	assert.True(t, ok)
}
