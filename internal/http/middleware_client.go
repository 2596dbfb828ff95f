package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acadvault/acadvault-api/internal/service"
)

// StoreSource hands out the SessionStore for a user agent.
type StoreSource interface {
	Get(clientID string) (*service.SessionStore, error)
	// Remove closes the user agent's store; the next Get starts a fresh one.
	Remove(clientID string)
}

// ClientSessionConfig configures the ClientSession middleware.
type ClientSessionConfig struct {
	Stores       StoreSource
	CookieDomain string
	// MaxAge of the client cookie. Defaults to 30 days.
	MaxAge time.Duration
	Logger *slog.Logger
}

// ClientSession identifies the user agent by the acadvault_client cookie, issuing
// a new id when it is missing or malformed, and puts its SessionStore in the
// request context.
func ClientSession(cfg ClientSessionConfig) func(http.Handler) http.Handler {
	if cfg.Stores == nil {
		panic("httpx: ClientSession requires a StoreSource")
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cookieValue(r, ClientCookieName)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    id,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					HttpOnly: true,
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(maxAge.Seconds()),
				})
			}

			store, err := cfg.Stores.Get(id)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to open session store", "error", err)
				if IsBrowserRequest(r) {
					http.Error(w, "Authentication is temporarily unavailable", http.StatusServiceUnavailable)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "unavailable",
					Err:     errors.New("authentication is temporarily unavailable"),
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(SetStoreInContext(r.Context(), id, store)))
		})
	}
}
