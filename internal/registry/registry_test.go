package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/docstore/sqlitestore"
	"github.com/mchen/ripple/pkg/errors"
	"github.com/mchen/ripple/pkg/logging"
)

func newTestRegistry(t *testing.T) (*Registry, docstore.Store) {
	store, err := sqlitestore.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, logging.Discard()), store
}

func TestCanonicalPair(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob"}, CanonicalPair("bob", "alice"))
	assert.Equal(t, []string{"alice", "bob"}, CanonicalPair("alice", "bob"))
}

func TestFindOrCreateIsPairOrderIndependent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, first.Participants)
	assert.Nil(t, first.LastMessage)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := reg.FindOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "reversed pair must reuse the existing conversation")
}

func TestFindOrCreateDistinctPairs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	ab, err := reg.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	ac, err := reg.FindOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.NotEqual(t, ab.ID, ac.ID)
}

func TestFindOrCreateRejectsSelf(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.FindOrCreate(context.Background(), "alice", "alice")
	assert.True(t, errors.Is(err, errors.CodeInvalidTarget))
}

func TestFindMissesUnknownPair(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = reg.Find(ctx, "alice", "dave")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
