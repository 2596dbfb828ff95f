package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/acadvault/acadvault-api/internal/data/pgxutil"
	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
)

// Sentinel errors for the account repository.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found or expired")
)

// Account is a locally managed identity with its password hash.
type Account struct {
	ID               string                    `db:"id"`
	Email            string                    `db:"email"`
	PasswordHash     string                    `db:"password_hash"`
	EmailConfirmedAt *time.Time                `db:"email_confirmed_at"`
	Metadata         domainauth.SignUpMetadata `db:"user_metadata"`
	CreatedAt        time.Time                 `db:"created_at"`
}

// Identity projects the account onto the domain identity.
func (a *Account) Identity() domainauth.Identity {
	return domainauth.Identity{
		ID:               a.ID,
		Email:            a.Email,
		EmailConfirmedAt: a.EmailConfirmedAt,
		Metadata:         a.Metadata,
	}
}

// CreateAccountRequest groups the columns of a new identity.
type CreateAccountRequest struct {
	Email        string
	PasswordHash string
	Metadata     domainauth.SignUpMetadata
	ConfirmedAt  *time.Time
}

const accountColumns = `id::text AS id, email, password_hash, email_confirmed_at, user_metadata, created_at`

// AccountRepo persists local identities and their refresh tokens.
type AccountRepo struct {
	DB *sql.DB
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// Create inserts a new identity. The profiles trigger provisions the matching profile
// in the same statement; a duplicate email maps to apperrors.EmailAlreadyRegistered.
func (r *AccountRepo) Create(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, apperrors.ValidationField("email", "email is required and cannot be empty")
	}
	var out Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		out, qerr = pgxutil.QueryOne[Account](ctx, conn, `
			INSERT INTO identities (email, password_hash, email_confirmed_at, user_metadata)
			VALUES ($1, $2, $3, $4)
			RETURNING `+accountColumns,
			strings.TrimSpace(req.Email), req.PasswordHash, req.ConfirmedAt, req.Metadata.Normalize(),
		)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// FindByEmail looks up an account case-insensitively.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM identities WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

// FindByID looks up an account by subject id.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM identities WHERE id::text = $1`, id)
}

func (r *AccountRepo) findOne(ctx context.Context, query string, args ...any) (*Account, error) {
	var out Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		out, qerr = pgxutil.QueryOne[Account](ctx, conn, query, args...)
		return qerr
	})
	if err != nil {
		if err = apperrors.MapDBError(err); apperrors.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &out, nil
}

// ConfirmEmail marks the account's email as verified at the given time.
func (r *AccountRepo) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE identities SET email_confirmed_at = $2, updated_at = now() WHERE id::text = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("confirm email: %w", apperrors.MapDBError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SaveRefreshToken records an opaque refresh token for identityID.
func (r *AccountRepo) SaveRefreshToken(ctx context.Context, token, identityID string, expiresAt time.Time) error {
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, identity_id, expires_at) VALUES ($1, $2::uuid, $3)`,
		token, identityID, expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("save refresh token: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ConsumeRefreshToken revokes a live refresh token and returns its owner.
// Each token can be consumed once; callers issue a replacement.
func (r *AccountRepo) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	var identityID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING identity_id::text`, token, now.UTC(),
	).Scan(&identityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRefreshTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", apperrors.MapDBError(err))
	}
	return identityID, nil
}

// RevokeRefreshToken revokes token if it is still live. Unknown tokens are ignored.
func (r *AccountRepo) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	if token == "" {
		return nil
	}
	if _, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL`, token, now.UTC(),
	); err != nil {
		return fmt.Errorf("revoke refresh token: %w", apperrors.MapDBError(err))
	}
	return nil
}
