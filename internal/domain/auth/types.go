package auth

// Package auth contains domain-level types for identities, sessions and profiles.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// Roles lists every recognized role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleFaculty, RoleStudent}
}

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return true
	default:
		return false
	}
}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// LandingPath returns the default area for a role.
// Unknown roles return false so callers can fall back to the sign-in page.
func LandingPath(r Role) (string, bool) {
	switch r {
	case RoleAdmin:
		return "/admin", true
	case RoleFaculty:
		return "/faculty", true
	case RoleStudent:
		return "/student", true
	default:
		return "", false
	}
}

// Departments offered at sign-up.
var Departments = []string{ //nolint:gochecknoglobals // fixed catalogue
	"Computer Science",
	"Information Technology",
	"Mathematics",
	"Physics",
	"Administration",
}

// IsDepartment reports whether name is a known department.
func IsDepartment(name string) bool {
	for _, d := range Departments {
		if d == name {
			return true
		}
	}
	return false
}

// Identity is the principal derived from a session: a stable subject plus verification state.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         SignUpMetadata `json:"user_metadata"`
}

// EmailConfirmed reports whether the identity has verified its email address.
func (i Identity) EmailConfirmed() bool {
	return i.EmailConfirmedAt != nil
}

// Session is the credential bundle issued by an identity provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// SameAs reports whether two sessions carry identical content for the same subject.
func (s *Session) SameAs(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.AccessToken == o.AccessToken && s.User.ID == o.User.ID
}

// Profile is the application-level record keyed by an identity's subject.
type Profile struct {
	ID         string    `json:"id"          db:"id"`
	UserID     string    `json:"user_id"     db:"user_id"`
	Email      string    `json:"email"       db:"email"`
	FullName   string    `json:"full_name"   db:"full_name"`
	Role       Role      `json:"role"        db:"role"`
	Department *string   `json:"department"  db:"department"`
	RollNumber *string   `json:"roll_number" db:"roll_number"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// SignUpMetadata is carried with a new identity and consumed by profile provisioning.
type SignUpMetadata struct {
	FullName   string  `json:"full_name"`
	Role       Role    `json:"role"`
	Department *string `json:"department,omitempty"`
	RollNumber *string `json:"roll_number,omitempty"`
}

// Normalize trims values, drops an empty department and keeps the roll number only for students.
func (m SignUpMetadata) Normalize() SignUpMetadata {
	out := SignUpMetadata{
		FullName: strings.TrimSpace(m.FullName),
		Role:     Role(strings.ToLower(strings.TrimSpace(string(m.Role)))),
	}
	out.Department = trimmedOrNil(m.Department)
	if out.Role == RoleStudent {
		out.RollNumber = trimmedOrNil(m.RollNumber)
	}
	return out
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// SessionEvent names a change emitted by an identity provider.
type SessionEvent string

const (
	EventInitialSession SessionEvent = "INITIAL_SESSION"
	EventSignedIn       SessionEvent = "SIGNED_IN"
	EventSignedOut      SessionEvent = "SIGNED_OUT"
	EventTokenRefreshed SessionEvent = "TOKEN_REFRESHED"
)

// ErrProfileNotFound is returned by profile stores when no row matches the subject.
var ErrProfileNotFound = errors.New("profile not found")
