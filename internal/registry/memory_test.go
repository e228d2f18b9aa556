package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetIsLastWriterWins(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	evicted, err := reg.Set(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	assert.Empty(t, evicted, "first registration should evict nothing")

	evicted, err = reg.Set(ctx, "user-42", "conn-2")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", evicted, "second registration should evict the first connection")

	connID, ok, err := reg.Lookup(ctx, "user-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "conn-2", connID)
}

func TestMemory_SetSameConnectionEvictsNothing(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	_, err := reg.Set(ctx, "user-42", "conn-1")
	require.NoError(t, err)

	evicted, err := reg.Set(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	assert.Empty(t, evicted, "re-registering the same connection must not self-evict")
}

func TestMemory_RemoveIsConditional(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	_, err := reg.Set(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	_, err = reg.Set(ctx, "user-42", "conn-2")
	require.NoError(t, err)

	// A stale disconnect for conn-1 must not evict conn-2's registration.
	removed, err := reg.Remove(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	assert.False(t, removed)

	connID, ok, err := reg.Lookup(ctx, "user-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "conn-2", connID)

	// The owning connection removes the entry.
	removed, err = reg.Remove(ctx, "user-42", "conn-2")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err = reg.Lookup(ctx, "user-42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_RemoveIsIdempotent(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	_, err := reg.Set(ctx, "user-42", "conn-1")
	require.NoError(t, err)

	removed, err := reg.Remove(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Remove(ctx, "user-42", "conn-1")
	require.NoError(t, err)
	assert.False(t, removed, "second remove must be a no-op")

	users, err := reg.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestMemory_UsersSnapshot(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	_, err := reg.Set(ctx, "user-a", "conn-1")
	require.NoError(t, err)
	_, err = reg.Set(ctx, "user-b", "conn-2")
	require.NoError(t, err)

	users, err := reg.Users(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, users)
}
