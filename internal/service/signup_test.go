package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
)

func TestSignUpValidator_Validate(t *testing.T) {
	v, err := NewSignUpValidator(nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		mutate    func(r *SignUpRequest)
		wantField string
		wantMsg   string
	}{
		{name: "valid student", mutate: func(*SignUpRequest) {}},
		{name: "valid without department", mutate: func(r *SignUpRequest) { r.Department = "" }},
		{name: "missing email", mutate: func(r *SignUpRequest) { r.Email = "" }, wantField: "email"},
		{name: "malformed email", mutate: func(r *SignUpRequest) { r.Email = "not-an-email" }, wantField: "email"},
		{
			name:      "short password",
			mutate:    func(r *SignUpRequest) { r.Password, r.ConfirmPassword = "abc", "abc" },
			wantField: "password",
			wantMsg:   "Password must be at least 6 characters",
		},
		{
			name:      "passwords differ",
			mutate:    func(r *SignUpRequest) { r.ConfirmPassword = "secret2" },
			wantField: "confirm_password",
			wantMsg:   "Passwords do not match",
		},
		{
			name:      "blank full name",
			mutate:    func(r *SignUpRequest) { r.FullName = "   " },
			wantField: "full_name",
			wantMsg:   "Full name is required",
		},
		{name: "unknown role", mutate: func(r *SignUpRequest) { r.Role = "dean" }, wantField: "role"},
		{
			name:      "unknown department",
			mutate:    func(r *SignUpRequest) { r.Department = "Alchemy" },
			wantField: "department",
			wantMsg:   "Select a valid department",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSignUp("student")
			tt.mutate(&req)
			err := v.Validate(req)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantField, apperrors.GetField(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apperrors.UserMessage(err, ""))
			}
		})
	}
}

func TestSignUpValidator_DomainAllowList(t *testing.T) {
	v, err := NewSignUpValidator([]string{"college.edu", " Uni.AC.uk "})
	require.NoError(t, err)

	assert.True(t, v.EmailDomainAllowed("a@college.edu"))
	assert.True(t, v.EmailDomainAllowed("a@cs.college.edu"))
	assert.True(t, v.EmailDomainAllowed("a@maths.uni.ac.uk"))
	assert.False(t, v.EmailDomainAllowed("a@gmail.com"))
	assert.False(t, v.EmailDomainAllowed("a@ac.uk"))
	assert.False(t, v.EmailDomainAllowed("no-at-sign"))

	req := validSignUp("faculty")
	req.Email = "prof@gmail.com"
	err = v.Validate(req)
	require.Error(t, err)
	assert.Equal(t, "email", apperrors.GetField(err))
}

func TestSignUpRequest_Metadata(t *testing.T) {
	req := validSignUp("student")
	req.FullName = "  Asha Rao "
	meta := req.Metadata()
	assert.Equal(t, "Asha Rao", meta.FullName)
	assert.Equal(t, domainauth.RoleStudent, meta.Role)
	require.NotNil(t, meta.RollNumber)
	require.NotNil(t, meta.Department)

	req = validSignUp("admin")
	req.Department = ""
	meta = req.Metadata()
	assert.Nil(t, meta.RollNumber)
	assert.Nil(t, meta.Department)
}
