package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acadvault/acadvault-api/config"
	"github.com/acadvault/acadvault-api/internal/adapters/idpclient"
	httpx "github.com/acadvault/acadvault-api/internal/http"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
	"github.com/acadvault/acadvault-api/internal/ports"
	"github.com/acadvault/acadvault-api/internal/service"
)

// AppDeps contains the infrastructure the HTTP application is assembled from.
type AppDeps struct {
	Config   *config.AppConfig
	Backend  ports.IdentityBackend
	Sessions ports.SessionPersistence
	Profiles ports.ProfileStore
	Clock    ports.Clock
	Metrics  statsd.Sink
	Logger   *slog.Logger
	// Readiness names the dependency pings behind /readyz.
	Readiness map[string]httpx.ReadinessCheck
}

// App is the assembled HTTP application.
type App struct {
	Handler  http.Handler
	Registry *service.StoreRegistry
}

// NewApp wires the per-client session stores and the router.
func NewApp(deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("identity backend is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session persistence is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factory, err := newStoreFactory(deps, logger)
	if err != nil {
		return nil, err
	}

	auth := deps.Config.Auth
	registry, err := service.NewStoreRegistry(service.StoreRegistryOptions{
		Factory: factory,
		Size:    auth.ClientCacheSize,
		IdleTTL: auth.ClientIdleTTL,
		Metrics: deps.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create store registry: %w", err)
	}

	if deps.Config.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", deps.Config.HTTP.CompressionLevel)
	}
	handler, err := httpx.NewRouter(httpx.RouterOptions{
		Stores:             registry,
		CookieDomain:       deps.Config.HTTP.CookieDomain,
		ClientCookieMaxAge: deps.Config.HTTP.ClientCookieMaxAge,
		GuardSettleTimeout: auth.GuardSettleTimeout,
		CompressionEnabled: deps.Config.HTTP.CompressionEnabled,
		CompressionLevel:   deps.Config.HTTP.CompressionLevel,
		ReadinessChecks:    deps.Readiness,
		ReadinessTimeout:   deps.Config.HTTP.ReadinessTimeout,
		Metrics:            deps.Metrics,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	return &App{Handler: handler, Registry: registry}, nil
}

const sessionRefreshMargin = 30 * time.Second

// newStoreFactory returns a factory that gives every client its own identity
// provider over the shared backend, keyed by the client id in session storage.
func newStoreFactory(deps AppDeps, logger *slog.Logger) (service.StoreFactory, error) {
	validator, err := service.NewSignUpValidator(deps.Config.Auth.SignUpAllowedDomains)
	if err != nil {
		return nil, fmt.Errorf("create sign-up validator: %w", err)
	}
	fetchTimeout := deps.Config.Auth.ProfileFetchTimeout

	return func(clientID string) (*service.SessionStore, error) {
		provider, err := idpclient.New(idpclient.Options{
			Backend:       deps.Backend,
			Storage:       deps.Sessions,
			StorageKey:    clientID,
			RefreshMargin: sessionRefreshMargin,
			Clock:         deps.Clock,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create identity provider: %w", err)
		}
		return service.NewSessionStore(service.SessionStoreOptions{
			Provider:            provider,
			Profiles:            deps.Profiles,
			SignUp:              validator,
			ProfileFetchTimeout: fetchTimeout,
			RefreshMargin:       sessionRefreshMargin,
			Clock:               deps.Clock,
			Metrics:             deps.Metrics,
			Logger:              logger.With("client_id", clientID),
		})
	}, nil
}
