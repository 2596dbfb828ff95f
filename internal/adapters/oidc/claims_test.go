package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

func TestClaimMapper_Map(t *testing.T) {
	tests := []struct {
		name   string
		exprs  ClaimExpressions
		claims map[string]any
		check  func(t *testing.T, m domainauth.SignUpMetadata)
	}{
		{
			name:  "flat claims for a student",
			exprs: defaultClaims(),
			claims: map[string]any{
				"name": " Asha Rao ", "acadvault_role": "Student",
				"department": "Physics", "roll_number": "PH-7",
			},
			check: func(t *testing.T, m domainauth.SignUpMetadata) {
				assert.Equal(t, "Asha Rao", m.FullName)
				assert.Equal(t, domainauth.RoleStudent, m.Role)
				require.NotNil(t, m.Department)
				assert.Equal(t, "Physics", *m.Department)
				require.NotNil(t, m.RollNumber)
				assert.Equal(t, "PH-7", *m.RollNumber)
			},
		},
		{
			name:  "nested role list",
			exprs: ClaimExpressions{FullName: "name", Role: "realm_access.roles[?starts_with(@, 'fac')]", RollNumber: "roll_number"},
			claims: map[string]any{
				"name":         "Dr. Iyer",
				"realm_access": map[string]any{"roles": []any{"offline_access", "faculty"}},
				"roll_number":  "ignored",
			},
			check: func(t *testing.T, m domainauth.SignUpMetadata) {
				assert.Equal(t, domainauth.RoleFaculty, m.Role)
				assert.Nil(t, m.RollNumber)
				assert.Nil(t, m.Department)
			},
		},
		{
			name:   "unknown role is left empty",
			exprs:  defaultClaims(),
			claims: map[string]any{"acadvault_role": "superuser"},
			check: func(t *testing.T, m domainauth.SignUpMetadata) {
				assert.Empty(t, m.Role)
				assert.False(t, m.Role.Valid())
			},
		},
		{
			name:   "empty expressions",
			exprs:  ClaimExpressions{},
			claims: map[string]any{"name": "x"},
			check: func(t *testing.T, m domainauth.SignUpMetadata) {
				assert.Equal(t, domainauth.SignUpMetadata{}, m)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapper, err := NewClaimMapper(tt.exprs)
			require.NoError(t, err)
			got, err := mapper.Map(tt.claims)
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestNewClaimMapper_RejectsInvalidExpression(t *testing.T) {
	_, err := NewClaimMapper(ClaimExpressions{FullName: "name[", Role: "role"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full name")
}
