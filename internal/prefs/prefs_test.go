package prefs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incmgr/internal/testutil"
)

func TestNightModeMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	nm := NightMode{Store: store}

	on, err := nm.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on, "unset preference is off")

	on, err = nm.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	v, ok, err := store.Get(ctx, NightModeKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	on, err = nm.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	v, _, _ = store.Get(ctx, NightModeKey)
	assert.Equal(t, "false", v)
}

func TestNightModeIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, NightModeKey, "yes"))

	on, err := NightMode{Store: store}.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestUserStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	admin := &UserStore{DB: db, UserID: testutil.UserID(t, db, "admin")}
	other := &UserStore{DB: db, UserID: testutil.CreateTestUser(t, db, "inspector", "password", "user", true)}

	_, ok, err := admin.Get(ctx, NightModeKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, NightMode{Store: admin}.Set(ctx, true))
	require.NoError(t, NightMode{Store: admin}.Set(ctx, true)) // last write wins, no duplicate key

	on, err := NightMode{Store: admin}.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = NightMode{Store: other}.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on, "preferences are per user")
}
