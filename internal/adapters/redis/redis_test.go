package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	mockauth "github.com/acadvault/acadvault-api/internal/mocks/auth"
	"github.com/acadvault/acadvault-api/internal/testutil"
)

func TestSessionPersistence_SaveLoadDelete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionPersistence(client, "test:")
	ctx := context.Background()

	sess := &domainauth.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		User:         domainauth.Identity{ID: "user-1", Email: "u@example.edu"},
	}
	require.NoError(t, store.Save(ctx, "client-1", sess))

	got, err := store.Load(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.AccessToken, got.AccessToken)
	assert.Equal(t, sess.User.ID, got.User.ID)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "client-1"))
	got, err = store.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionPersistence_ExpiredWithoutRefreshIsNotStored(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionPersistence(client, "test:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-2", &domainauth.Session{
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))
	got, err := store.Load(ctx, "client-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionPersistence_CorruptEntryDropped(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionPersistence(client, "test:")
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:idp:session:client-3", "{not json", time.Minute).Err())
	got, err := store.Load(ctx, "client-3")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, client.Exists(ctx, "test:idp:session:client-3").Val())
}

func TestProfileCache_ReadThrough(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	backing := mockauth.NewMemoryProfileStore(domainauth.Profile{
		ID: "p1", UserID: "user-1", FullName: "Asha", Role: domainauth.RoleStudent,
	})
	cache := NewProfileCache(ProfileCacheOptions{Client: client, Next: backing, Prefix: "test:", TTL: time.Minute})
	ctx := context.Background()

	first, err := cache.FindProfileBySubjectID(ctx, "user-1")
	require.NoError(t, err)
	second, err := cache.FindProfileBySubjectID(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.FullName, second.FullName)
	assert.Equal(t, 1, backing.Calls("user-1"))

	require.NoError(t, cache.Invalidate(ctx, "user-1"))
	_, err = cache.FindProfileBySubjectID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.Calls("user-1"))
}

func TestProfileCache_MissesAreNotCached(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	backing := mockauth.NewMemoryProfileStore()
	cache := NewProfileCache(ProfileCacheOptions{Client: client, Next: backing, Prefix: "test:", TTL: time.Minute})
	ctx := context.Background()

	_, err := cache.FindProfileBySubjectID(ctx, "late")
	assert.True(t, errors.Is(err, domainauth.ErrProfileNotFound))

	backing.Put(domainauth.Profile{ID: "p2", UserID: "late", Role: domainauth.RoleFaculty})
	p, err := cache.FindProfileBySubjectID(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleFaculty, p.Role)
}

func TestProfileCache_DisabledPassesThrough(t *testing.T) {
	backing := mockauth.NewMemoryProfileStore(domainauth.Profile{UserID: "u", Role: domainauth.RoleAdmin})
	cache := NewProfileCache(ProfileCacheOptions{Next: backing})

	for range 3 {
		_, err := cache.FindProfileBySubjectID(context.Background(), "u")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, backing.Calls("u"))
}
