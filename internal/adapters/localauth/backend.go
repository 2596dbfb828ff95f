// Package localauth implements an IdentityBackend over accounts stored in Postgres.
// Passwords are bcrypt hashes; access tokens are HS256 JWTs and refresh tokens are
// opaque single-use identifiers rotated on every refresh.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadvault/acadvault-api/internal/data"
	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// Accounts is the account storage the backend needs. *data.AccountRepo satisfies it.
type Accounts interface {
	Create(ctx context.Context, req data.CreateAccountRequest) (*data.Account, error)
	FindByEmail(ctx context.Context, email string) (*data.Account, error)
	FindByID(ctx context.Context, id string) (*data.Account, error)
	SaveRefreshToken(ctx context.Context, token, identityID string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error
}

// Options configures a Backend.
type Options struct {
	Accounts   Accounts
	Tokens     *TokenIssuer
	RefreshTTL time.Duration
	// RequireEmailConfirmation blocks sign-in for unverified emails and makes
	// Register return no session.
	RequireEmailConfirmation bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Clock      ports.Clock
	Logger     *slog.Logger
}

// Backend implements ports.IdentityBackend.
type Backend struct {
	accounts       Accounts
	tokens         *TokenIssuer
	refreshTTL     time.Duration
	requireConfirm bool
	cost           int
	clock          ports.Clock
	logger         *slog.Logger
	dummyHash      []byte
}

var (
	_ ports.IdentityBackend = (*Backend)(nil)
	_ ports.SessionVerifier = (*Backend)(nil)
)

// New creates a Backend.
func New(opts Options) (*Backend, error) {
	if opts.Accounts == nil {
		return nil, errors.New("accounts repository is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	clock := opts.Clock
	if clock == nil {
		clock = data.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refreshTTL := opts.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	// Compared against on unknown emails so both paths cost one bcrypt round.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}

	return &Backend{
		accounts:       opts.Accounts,
		tokens:         opts.Tokens,
		refreshTTL:     refreshTTL,
		requireConfirm: opts.RequireEmailConfirmation,
		cost:           cost,
		clock:          clock,
		logger:         logger.With("component", "localauth"),
		dummyHash:      dummy,
	}, nil
}

// PasswordGrant verifies email and password and issues a session.
func (b *Backend) PasswordGrant(ctx context.Context, email, password string) (*domainauth.Session, error) {
	acct, err := b.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(b.dummyHash, []byte(password))
			return nil, apperrors.InvalidCredentials()
		}
		return nil, apperrors.Unavailable(err, "Unable to reach the account store")
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.InvalidCredentials()
	}
	if b.requireConfirm && acct.EmailConfirmedAt == nil {
		return nil, apperrors.New(apperrors.ErrCodeEmailNotConfirmed, "Email not confirmed")
	}
	return b.issue(ctx, acct.Identity())
}

// HashPassword returns the bcrypt hash of password at the backend's cost.
func (b *Backend) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an account. The profile is provisioned by the database in the same insert.
func (b *Backend) Register(ctx context.Context, in ports.RegisterInput) (*domainauth.Session, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "Email is required")
	}
	hash, err := b.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	req := data.CreateAccountRequest{
		Email:        email,
		PasswordHash: hash,
		Metadata:     in.Metadata.Normalize(),
	}
	if !b.requireConfirm {
		now := b.clock.Now().UTC()
		req.ConfirmedAt = &now
	}

	acct, err := b.accounts.Create(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
			return nil, err
		}
		return nil, apperrors.Unavailable(err, "Unable to create the account")
	}
	b.logger.InfoContext(ctx, "account registered", "user_id", acct.ID, "role", acct.Metadata.Role)

	if b.requireConfirm {
		return nil, nil
	}
	return b.issue(ctx, acct.Identity())
}

// Refresh rotates refreshToken and issues a new session for its owner.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	identityID, err := b.accounts.ConsumeRefreshToken(ctx, refreshToken, b.clock.Now())
	if err != nil {
		if errors.Is(err, data.ErrRefreshTokenNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, apperrors.Unavailable(err, "Unable to refresh the session")
	}
	acct, err := b.accounts.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, data.ErrAccountNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, apperrors.Unavailable(err, "Unable to refresh the session")
	}
	return b.issue(ctx, acct.Identity())
}

// Revoke invalidates the session's refresh token. Access tokens expire on their own.
func (b *Backend) Revoke(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil || sess.RefreshToken == "" {
		return nil
	}
	return b.accounts.RevokeRefreshToken(ctx, sess.RefreshToken, b.clock.Now())
}

// VerifySession checks the access token's signature, issuer and expiry, and
// that it was issued to the session's subject.
func (b *Backend) VerifySession(_ context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return apperrors.InvalidCredentials()
	}
	claims, err := b.tokens.Verify(sess.AccessToken, b.clock.Now())
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Session is no longer valid")
	}
	if claims.Subject != sess.User.ID {
		return apperrors.New(apperrors.ErrCodeInvalidCredentials, "Session is no longer valid")
	}
	return nil
}

func (b *Backend) issue(ctx context.Context, identity domainauth.Identity) (*domainauth.Session, error) {
	now := b.clock.Now()
	access, expiresAt, err := b.tokens.Issue(identity, now)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	if err := b.accounts.SaveRefreshToken(ctx, refresh, identity.ID, now.Add(b.refreshTTL)); err != nil {
		return nil, apperrors.Unavailable(err, "Unable to start a session")
	}
	return &domainauth.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         identity,
	}, nil
}
