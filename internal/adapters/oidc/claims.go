package oidc

import (
	"fmt"
	"strings"

	"github.com/jmespath-community/go-jmespath"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

// ClaimExpressions are JMESPath expressions evaluated against verified token claims.
// An empty expression leaves the corresponding field unset.
type ClaimExpressions struct {
	FullName   string
	Role       string
	Department string
	RollNumber string
}

// ClaimMapper derives profile metadata from identity provider claims.
type ClaimMapper struct {
	exprs ClaimExpressions
}

// NewClaimMapper validates every expression up front so misconfiguration fails at startup.
func NewClaimMapper(exprs ClaimExpressions) (*ClaimMapper, error) {
	for name, expr := range map[string]string{
		"full name":   exprs.FullName,
		"role":        exprs.Role,
		"department":  exprs.Department,
		"roll number": exprs.RollNumber,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid %s claim expression %q: %w", name, expr, err)
		}
	}
	return &ClaimMapper{exprs: exprs}, nil
}

// Map evaluates the expressions and returns normalized metadata.
// The role is left empty when the claim does not name a known role.
func (m *ClaimMapper) Map(claims map[string]any) (domainauth.SignUpMetadata, error) {
	fullName, err := m.lookup(m.exprs.FullName, claims)
	if err != nil {
		return domainauth.SignUpMetadata{}, err
	}
	rawRole, err := m.lookup(m.exprs.Role, claims)
	if err != nil {
		return domainauth.SignUpMetadata{}, err
	}
	dept, err := m.lookup(m.exprs.Department, claims)
	if err != nil {
		return domainauth.SignUpMetadata{}, err
	}
	roll, err := m.lookup(m.exprs.RollNumber, claims)
	if err != nil {
		return domainauth.SignUpMetadata{}, err
	}

	meta := domainauth.SignUpMetadata{FullName: fullName, Department: &dept, RollNumber: &roll}
	if role, ok := domainauth.ParseRole(rawRole); ok {
		meta.Role = role
	}
	return meta.Normalize(), nil
}

func (m *ClaimMapper) lookup(expr string, claims map[string]any) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", nil
	}
	v, err := jmespath.Search(expr, claims)
	if err != nil {
		return "", fmt.Errorf("evaluate claim expression %q: %w", expr, err)
	}
	return claimString(v), nil
}

// claimString flattens a JMESPath result into a single value.
// Lists yield their first string element, which covers group-style role claims.
func claimString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
		return ""
	case float64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}
