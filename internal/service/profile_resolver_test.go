package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/mocks"
)

func newTestResolver(t *testing.T, store *mocks.MockProfileStore, onChange func()) *ProfileResolver {
	t.Helper()
	r, err := NewProfileResolver(ProfileResolverOptions{Store: store, Timeout: time.Second, OnChange: onChange})
	require.NoError(t, err)
	return r
}

func TestNewProfileResolver_RequiresStore(t *testing.T) {
	_, err := NewProfileResolver(ProfileResolverOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProfileStore is required")
}

func TestProfileResolver_FetchesOffCallerStack(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	p := testProfile("u1", domainauth.RoleStudent)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "u1").
		DoAndReturn(func(context.Context, string) (*domainauth.Profile, error) {
			close(started)
			<-release
			return &p, nil
		})

	var changes atomic.Int32
	r := newTestResolver(t, store, func() { changes.Add(1) })

	r.OnIdentityChange(&domainauth.Identity{ID: "u1"})
	snap := r.Snapshot()
	assert.True(t, snap.Loading)
	assert.Equal(t, ProfileStatusLoading, snap.Status)
	assert.Zero(t, changes.Load())

	<-started
	close(release)
	r.Wait()

	snap = r.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, ProfileStatusReady, snap.Status)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, domainauth.RoleStudent, snap.Profile.Role)
	assert.Equal(t, int32(1), changes.Load())
}

func TestProfileResolver_NilIdentityClearsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	p := testProfile("u1", domainauth.RoleAdmin)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "u1").Return(&p, nil)

	r := newTestResolver(t, store, nil)
	r.OnIdentityChange(&domainauth.Identity{ID: "u1"})
	r.Wait()
	require.NotNil(t, r.Snapshot().Profile)

	r.OnIdentityChange(nil)
	snap := r.Snapshot()
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
	assert.Equal(t, ProfileStatusNone, snap.Status)
}

func TestProfileResolver_ErrorsSplitByKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "missing").Return(nil, domainauth.ErrProfileNotFound)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "broken").Return(nil, errors.New("connection refused"))

	r := newTestResolver(t, store, nil)

	r.OnIdentityChange(&domainauth.Identity{ID: "missing"})
	r.Wait()
	snap := r.Snapshot()
	assert.Equal(t, ProfileStatusMissing, snap.Status)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)

	r.OnIdentityChange(&domainauth.Identity{ID: "broken"})
	r.Wait()
	snap = r.Snapshot()
	assert.Equal(t, ProfileStatusUnavailable, snap.Status)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
}

func TestProfileResolver_FetchIsBoundedByTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "slow").
		DoAndReturn(func(ctx context.Context, _ string) (*domainauth.Profile, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	r, err := NewProfileResolver(ProfileResolverOptions{Store: store, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	r.OnIdentityChange(&domainauth.Identity{ID: "slow"})
	r.Wait()
	assert.Equal(t, ProfileStatusUnavailable, r.Snapshot().Status)
}

func TestProfileResolver_CloseDiscardsInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	release := make(chan struct{})
	p := testProfile("u1", domainauth.RoleFaculty)
	store.EXPECT().FindProfileBySubjectID(gomock.Any(), "u1").
		DoAndReturn(func(context.Context, string) (*domainauth.Profile, error) {
			<-release
			return &p, nil
		})

	var changes atomic.Int32
	r := newTestResolver(t, store, func() { changes.Add(1) })
	r.OnIdentityChange(&domainauth.Identity{ID: "u1"})
	r.Close()
	close(release)
	r.Wait()

	assert.Nil(t, r.Snapshot().Profile)
	assert.Zero(t, changes.Load())

	r.OnIdentityChange(&domainauth.Identity{ID: "u1"})
	r.Wait()
	assert.Equal(t, ProfileStatusNone, r.Snapshot().Status)
}
