package data

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/testutil"
)

func TestProfileRepo_FindProfileBySubjectID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewProfileRepo(db)

	_, err := repo.FindProfileBySubjectID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domainauth.ErrProfileNotFound)

	_, err = repo.FindProfileBySubjectID(context.Background(), "")
	assert.ErrorIs(t, err, domainauth.ErrProfileNotFound)
}

func TestProfileRepo_ProvisionProfileIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewProfileRepo(db)
	ctx := context.Background()

	identity := domainauth.Identity{ID: uuid.NewString(), Email: "sso@example.edu"}
	first, err := repo.ProvisionProfile(ctx, identity, domainauth.SignUpMetadata{
		FullName: "SSO User",
		Role:     domainauth.RoleFaculty,
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleFaculty, first.Role)

	second, err := repo.ProvisionProfile(ctx, identity, domainauth.SignUpMetadata{
		FullName: "Changed",
		Role:     domainauth.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domainauth.RoleFaculty, second.Role, "role is immutable after creation")

	byEmail, err := repo.FindByEmail(ctx, "SSO@example.edu")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byEmail.ID)
}

func TestProfileRepo_ProvisionProfileRejectsUnknownRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := NewProfileRepo(db).ProvisionProfile(context.Background(),
		domainauth.Identity{ID: uuid.NewString(), Email: "x@example.edu"},
		domainauth.SignUpMetadata{FullName: "X", Role: "janitor"},
	)
	require.Error(t, err)
}

func TestProfileRepo_ProvisionProfileWithProviderSubject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewProfileRepo(db)
	ctx := context.Background()

	// External providers often issue opaque, non-uuid subjects.
	subject := "auth0|" + uuid.NewString()[:8]
	created, err := repo.ProvisionProfile(ctx, domainauth.Identity{ID: subject, Email: subject + "@example.edu"},
		domainauth.SignUpMetadata{FullName: "Opaque Subject", Role: domainauth.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, subject, created.UserID)

	found, err := repo.FindProfileBySubjectID(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}
