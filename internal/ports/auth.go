// Package ports defines interfaces that decouple the core from external identity
// providers, storage and clocks.
package ports

import (
	"context"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

// SessionChangeFunc receives identity provider events. A nil session means signed out.
type SessionChangeFunc func(event domainauth.SessionEvent, session *domainauth.Session)

// IdentityProvider is the per-user-agent client of an identity service.
// Implementations deliver SessionChangeFunc callbacks on the goroutine that produced the change.
type IdentityProvider interface {
	CurrentSession(ctx context.Context) (*domainauth.Session, error)
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error)
	// SignUp may return a nil session when email confirmation is required.
	SignUp(ctx context.Context, email, password string, meta domainauth.SignUpMetadata) (*domainauth.Session, error)
	SignOut(ctx context.Context) error
}

// IdentityBackend performs credential operations against an identity service.
// It is shared by every IdentityProvider client and keeps no per-user state.
type IdentityBackend interface {
	PasswordGrant(ctx context.Context, email, password string) (*domainauth.Session, error)
	Register(ctx context.Context, in RegisterInput) (*domainauth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error)
	Revoke(ctx context.Context, sess *domainauth.Session) error
}

// SessionVerifier is implemented by backends that can check a persisted
// session's access token before it is trusted again.
type SessionVerifier interface {
	VerifySession(ctx context.Context, sess *domainauth.Session) error
}

// RegisterInput groups sign-up parameters for IdentityBackend.Register.
type RegisterInput struct {
	Email    string
	Password string
	Metadata domainauth.SignUpMetadata
}

// SessionPersistence is the secure storage an IdentityProvider keeps its session in.
type SessionPersistence interface {
	Load(ctx context.Context, key string) (*domainauth.Session, error)
	Save(ctx context.Context, key string, sess *domainauth.Session) error
	Delete(ctx context.Context, key string) error
}

// ProfileStore looks up application profiles.
// FindProfileBySubjectID returns domainauth.ErrProfileNotFound when no row matches.
type ProfileStore interface {
	FindProfileBySubjectID(ctx context.Context, subjectID string) (*domainauth.Profile, error)
}

// ProfileProvisioner creates a profile for an identity that has none.
// It must be idempotent: an existing profile is returned unchanged.
type ProfileProvisioner interface {
	ProvisionProfile(ctx context.Context, identity domainauth.Identity, meta domainauth.SignUpMetadata) (*domainauth.Profile, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
