package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

func stateWithRole(role domainauth.Role) AuthState {
	sess := testSession("u1", "t1")
	p := testProfile("u1", role)
	return AuthState{Session: sess, User: &sess.User, Profile: &p, ProfileStatus: ProfileStatusReady}
}

func TestEvaluateAccess(t *testing.T) {
	admin := []domainauth.Role{domainauth.RoleAdmin}
	student := []domainauth.Role{domainauth.RoleStudent}
	faculty := []domainauth.Role{domainauth.RoleFaculty}

	signedInNoProfile := func() AuthState {
		sess := testSession("u1", "t1")
		return AuthState{Session: sess, User: &sess.User, ProfileStatus: ProfileStatusMissing}
	}()

	tests := []struct {
		name     string
		state    AuthState
		location string
		allow    []domainauth.Role
		want     Decision
	}{
		{
			name:     "loading shows placeholder even without session",
			state:    AuthState{Loading: true},
			location: "/admin/users",
			allow:    admin,
			want:     Decision{Kind: DecisionPlaceholder},
		},
		{
			name:     "loading shows placeholder for a signed-in user",
			state:    func() AuthState { s := stateWithRole(domainauth.RoleAdmin); s.Loading = true; return s }(),
			location: "/admin",
			allow:    admin,
			want:     Decision{Kind: DecisionPlaceholder},
		},
		{
			name:     "anonymous is sent to sign in with the original location",
			state:    AuthState{},
			location: "/admin/users",
			allow:    admin,
			want:     Decision{Kind: DecisionRedirect, Target: "/auth?from=%2Fadmin%2Fusers", Reason: ReasonUnauthenticated},
		},
		{
			name:     "query string is preserved",
			state:    AuthState{},
			location: "/student/academics?term=2",
			allow:    student,
			want: Decision{
				Kind: DecisionRedirect, Target: "/auth?from=%2Fstudent%2Facademics%3Fterm%3D2", Reason: ReasonUnauthenticated,
			},
		},
		{
			name:     "missing profile is treated like no session",
			state:    signedInNoProfile,
			location: "/student",
			allow:    student,
			want:     Decision{Kind: DecisionRedirect, Target: "/auth?from=%2Fstudent", Reason: ReasonNoProfile},
		},
		{
			name:     "faculty visiting student area lands on faculty",
			state:    stateWithRole(domainauth.RoleFaculty),
			location: "/student",
			allow:    student,
			want:     Decision{Kind: DecisionRedirect, Target: "/faculty", Reason: ReasonForbiddenRole},
		},
		{
			name:     "student visiting admin area lands on student",
			state:    stateWithRole(domainauth.RoleStudent),
			location: "/admin/reports",
			allow:    admin,
			want:     Decision{Kind: DecisionRedirect, Target: "/student", Reason: ReasonForbiddenRole},
		},
		{
			name:     "admin visiting faculty area lands on admin",
			state:    stateWithRole(domainauth.RoleAdmin),
			location: "/faculty/verify",
			allow:    faculty,
			want:     Decision{Kind: DecisionRedirect, Target: "/admin", Reason: ReasonForbiddenRole},
		},
		{
			name:     "unknown role goes to sign in",
			state:    stateWithRole(domainauth.Role("janitor")),
			location: "/admin",
			allow:    admin,
			want:     Decision{Kind: DecisionRedirect, Target: "/auth", Reason: ReasonUnknownRole},
		},
		{
			name:     "allowed role renders",
			state:    stateWithRole(domainauth.RoleStudent),
			location: "/student/portfolio",
			allow:    student,
			want:     Decision{Kind: DecisionRender},
		},
		{
			name:     "empty allow-list admits any profile",
			state:    stateWithRole(domainauth.RoleFaculty),
			location: "/",
			want:     Decision{Kind: DecisionRender},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateAccess(tt.state, tt.location, tt.allow))
		})
	}
}

func TestSignInRedirect(t *testing.T) {
	assert.Equal(t, "/auth", SignInRedirect(""))
	assert.Equal(t, "/auth?from=%2Fstudent", SignInRedirect("/student"))
}

func TestSafeReturnPath(t *testing.T) {
	tests := map[string]string{
		"/student/settings":      "/student/settings",
		"/admin/users?page=2":    "/admin/users?page=2",
		"":                       "/",
		"https://evil.example":   "/",
		"//evil.example/path":    "/",
		"/\\evil.example":        "/",
		"relative/path":          "/",
		"javascript:alert(1)":    "/",
		"/faculty/verify#top":    "/faculty/verify#top",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeReturnPath(in, "/"), "input %q", in)
	}
}
