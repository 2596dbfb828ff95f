package service

import (
	"net/url"
	"slices"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

// SignInPath is where unauthenticated visitors are sent.
const SignInPath = "/auth"

// DecisionKind enumerates the access guard outcomes.
type DecisionKind string

const (
	// DecisionPlaceholder renders a neutral loading page while auth state settles.
	DecisionPlaceholder DecisionKind = "placeholder"
	// DecisionRedirect navigates elsewhere, replacing the current history entry.
	DecisionRedirect DecisionKind = "redirect"
	// DecisionRender renders the protected content.
	DecisionRender DecisionKind = "render"
)

// Decision is the outcome of EvaluateAccess.
type Decision struct {
	Kind DecisionKind
	// Target is set for redirects.
	Target string
	// Reason explains redirects for logs and API responses.
	Reason string
}

// Redirect reasons.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNoProfile       = "no_profile"
	ReasonForbiddenRole   = "forbidden_role"
	ReasonUnknownRole     = "unknown_role"
)

// EvaluateAccess decides whether the holder of state may view location.
// location is the request path with its query string; allow lists the permitted
// roles, and an empty list admits any role with a profile.
func EvaluateAccess(state AuthState, location string, allow []domainauth.Role) Decision {
	if state.Loading {
		return Decision{Kind: DecisionPlaceholder}
	}
	if state.Session == nil {
		return Decision{Kind: DecisionRedirect, Target: SignInRedirect(location), Reason: ReasonUnauthenticated}
	}
	if state.Profile == nil {
		return Decision{Kind: DecisionRedirect, Target: SignInRedirect(location), Reason: ReasonNoProfile}
	}
	if len(allow) > 0 && !slices.Contains(allow, state.Profile.Role) {
		landing, ok := domainauth.LandingPath(state.Profile.Role)
		if !ok {
			return Decision{Kind: DecisionRedirect, Target: SignInPath, Reason: ReasonUnknownRole}
		}
		return Decision{Kind: DecisionRedirect, Target: landing, Reason: ReasonForbiddenRole}
	}
	return Decision{Kind: DecisionRender}
}

// SignInRedirect builds the sign-in URL that carries the original location.
func SignInRedirect(location string) string {
	if location == "" {
		return SignInPath
	}
	return SignInPath + "?from=" + url.QueryEscape(location)
}

// SafeReturnPath returns from when it is a local absolute path, otherwise fallback.
// It prevents the sign-in flow from becoming an open redirect.
func SafeReturnPath(from, fallback string) string {
	if from == "" || from[0] != '/' || len(from) > 1 && (from[1] == '/' || from[1] == '\\') {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return from
}
