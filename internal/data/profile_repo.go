package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/acadvault/acadvault-api/internal/data/pgxutil"
	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/ports"
)

const profileColumns = `id::text AS id, user_id, email, full_name, role,
	department, roll_number, created_at, updated_at`

// ProfileRepo reads and provisions application profiles in Postgres.
type ProfileRepo struct {
	DB *sql.DB
}

var (
	_ ports.ProfileStore       = (*ProfileRepo)(nil)
	_ ports.ProfileProvisioner = (*ProfileRepo)(nil)
)

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db}
}

// FindProfileBySubjectID returns the single profile owned by subjectID.
func (r *ProfileRepo) FindProfileBySubjectID(ctx context.Context, subjectID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domainauth.ErrProfileNotFound
	}
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, subjectID)
}

// FindByEmail returns the profile registered with email (case-insensitive).
func (r *ProfileRepo) FindByEmail(ctx context.Context, email string) (*domainauth.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *ProfileRepo) findOne(ctx context.Context, query string, args ...any) (*domainauth.Profile, error) {
	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		out, qerr = pgxutil.QueryOne[domainauth.Profile](ctx, conn, query, args...)
		return qerr
	})
	if err != nil {
		if err = apperrors.MapDBError(err); apperrors.IsNotFound(err) {
			return nil, domainauth.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &out, nil
}

// ProvisionProfile inserts a profile for identity unless one already exists.
// The existing row wins, so role stays immutable after creation.
func (r *ProfileRepo) ProvisionProfile(
	ctx context.Context,
	identity domainauth.Identity,
	meta domainauth.SignUpMetadata,
) (*domainauth.Profile, error) {
	meta = meta.Normalize()
	if !meta.Role.Valid() {
		return nil, apperrors.ValidationField("role", "role must be one of: admin, faculty, student")
	}
	fullName := meta.FullName
	if fullName == "" {
		fullName = identity.Email
	}

	var out domainauth.Profile
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (user_id, email, full_name, role, department, roll_number)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO NOTHING`,
			identity.ID, identity.Email, fullName, string(meta.Role), meta.Department, meta.RollNumber,
		); err != nil {
			return err
		}
		var qerr error
		out, qerr = pgxutil.QueryOne[domainauth.Profile](ctx, tx,
			`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, identity.ID)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("provision profile: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}
