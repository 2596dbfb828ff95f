package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/observability/metrics"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
	"github.com/acadvault/acadvault-api/internal/service"
)

// GuardConfig configures the access guard middleware.
type GuardConfig struct {
	// SettleTimeout bounds how long a request waits for a loading store before
	// the placeholder is served. Zero serves the placeholder immediately.
	SettleTimeout time.Duration
	Renderer      *TemplateRenderer
	Metrics       statsd.Sink
	Logger        *slog.Logger
}

// Guard protects routes by role.
type Guard struct {
	settleTimeout time.Duration
	renderer      *TemplateRenderer
	metrics       statsd.Sink
	logger        *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		settleTimeout: cfg.SettleTimeout,
		renderer:      cfg.Renderer,
		metrics:       cfg.Metrics,
		logger:        logger.With("component", "access_guard"),
	}
}

// RequireRoles admits requests whose profile role is in roles; no roles admits
// any signed-in user with a profile. The decision is recomputed on every request.
func (g *Guard) RequireRoles(roles ...domainauth.Role) func(http.Handler) http.Handler {
	allow := slices.Clone(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := MustStoreFromContext(r.Context())
			st := settledState(r.Context(), store, g.settleTimeout)
			d := service.EvaluateAccess(st, r.URL.RequestURI(), allow)
			metrics.EmitGuardDecision(g.metrics, string(d.Kind), routeLabel(r))

			switch d.Kind {
			case service.DecisionRender:
				next.ServeHTTP(w, r)
			case service.DecisionPlaceholder:
				g.placeholder(w, r)
			case service.DecisionRedirect:
				g.logger.DebugContext(r.Context(), "access redirected",
					"path", r.URL.Path, "target", d.Target, "reason", d.Reason)
				g.redirect(w, r, d)
			}
		})
	}
}

// settledState waits up to timeout for store to stop loading, then
// revalidates a session whose access token has lapsed.
func settledState(ctx context.Context, store *service.SessionStore, timeout time.Duration) service.AuthState {
	st := store.State()
	if st.Loading && timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		st = store.WaitSettled(waitCtx)
		cancel()
	}
	if st.Loading {
		return st
	}
	return store.Revalidate(ctx)
}

// placeholder renders a neutral page that reloads itself; API clients are told to retry.
func (g *Guard) placeholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	if !IsBrowserRequest(r) || g.renderer == nil {
		WriteJSON(w, http.StatusServiceUnavailable, guardBody{
			Error:   "auth_loading",
			Message: "authentication state is still loading",
		})
		return
	}
	w.Header().Set("Refresh", "1")
	data := basePageData(r, PageLoading, "Loading")
	data.RefreshSeconds = 1
	_ = g.renderer.Render(w, http.StatusOK, data)
}

type guardBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (g *Guard) redirect(w http.ResponseWriter, r *http.Request, d service.Decision) {
	if IsBrowserRequest(r) {
		if IsHTMX(r) {
			SetHXRedirect(w, d.Target)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, d.Target, http.StatusSeeOther)
		return
	}

	switch d.Reason {
	case service.ReasonForbiddenRole:
		WriteJSON(w, http.StatusForbidden, guardBody{
			Error: "insufficient_permissions", Message: "this area is not available to your role", RedirectTo: d.Target,
		})
	case service.ReasonUnknownRole:
		WriteJSON(w, http.StatusForbidden, guardBody{
			Error: "unknown_role", Message: "your profile has no recognised role", RedirectTo: d.Target,
		})
	default:
		WriteJSON(w, http.StatusUnauthorized, guardBody{
			Error: "authentication_required", Message: "sign in to continue", RedirectTo: d.Target,
		})
	}
}

// routeLabel is the matched mux pattern, used as a low-cardinality metric tag.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}
