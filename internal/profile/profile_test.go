package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchen/ripple/internal/docstore/sqlitestore"
	"github.com/mchen/ripple/pkg/errors"
	"github.com/mchen/ripple/pkg/logging"
)

func newTestService(t *testing.T) *Service {
	store, err := sqlitestore.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, logging.Discard())
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Alice Chen", "hi there")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Chen", got.DisplayName)
	assert.Equal(t, "hi there", got.Bio)
	assert.Empty(t, got.Friends)
	assert.Nil(t, got.LastActive)
}

func TestCreateRequiresDisplayName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), "   ", "")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestDefaultAvatarApplied(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Alice Chen", "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultAvatarURL("Alice Chen"), got.PhotoURL)
	assert.Contains(t, got.PhotoURL, "ui-avatars.com")
	assert.Contains(t, got.PhotoURL, "Alice+Chen")
}

func TestUpdateProfilePartial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "alice", "old bio")
	require.NoError(t, err)

	err = svc.UpdateProfile(ctx, created.ID, ProfileEdit{
		Bio:      "new bio",
		PhotoURL: "https://cdn.example.com/alice.png",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.DisplayName, "unset fields stay untouched")
	assert.Equal(t, "new bio", got.Bio)
	assert.Equal(t, "https://cdn.example.com/alice.png", got.PhotoURL)
}

func TestHeartbeatSetsLastActive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "alice", "")
	require.NoError(t, err)
	require.NoError(t, svc.Heartbeat(ctx, created.ID))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastActive)
	assert.False(t, got.LastActive.IsZero())
}

func TestHeartbeatUnknownUser(t *testing.T) {
	svc := newTestService(t)

	err := svc.Heartbeat(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSearchPrefixCaseInsensitive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"Alice", "alicia", "Bob", "Albert"} {
		_, err := svc.Create(ctx, name, "")
		require.NoError(t, err)
	}

	users, err := svc.Search(ctx, "ali")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].DisplayName)
	assert.Equal(t, "alicia", users[1].DisplayName)
}

func TestSearchCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, "user"+string(rune('a'+i)), "")
		require.NoError(t, err)
	}

	users, err := svc.Search(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, users, 10)
}
