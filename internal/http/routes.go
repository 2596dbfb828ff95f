package httpx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	acadvault "github.com/acadvault/acadvault-api"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
)

// RouterOptions holds everything the HTTP router needs.
type RouterOptions struct {
	Stores StoreSource
	// TemplateFS and StaticFS default to the embedded assets.
	TemplateFS fs.FS
	StaticFS   fs.FS

	CookieDomain       string
	ClientCookieMaxAge time.Duration
	GuardSettleTimeout time.Duration

	CompressionEnabled bool
	CompressionLevel   int

	// ReadinessChecks back /readyz, keyed by dependency name.
	ReadinessChecks  map[string]ReadinessCheck
	ReadinessTimeout time.Duration

	Metrics statsd.Sink
	Logger  *slog.Logger
}

// NewRouter wires the public pages, the role portals behind the access guard,
// the auth endpoints and the health checks.
func NewRouter(opts RouterOptions) (http.Handler, error) {
	if opts.Stores == nil {
		return nil, errors.New("StoreSource is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	templateFS, staticFS, err := resolveAssets(opts)
	if err != nil {
		return nil, err
	}

	renderer, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create template renderer: %w", err)
	}
	guard := NewGuard(GuardConfig{
		SettleTimeout: opts.GuardSettleTimeout,
		Renderer:      renderer,
		Metrics:       opts.Metrics,
		Logger:        logger,
	})
	auth := &AuthHandlers{Renderer: renderer, Stores: opts.Stores, SettleTimeout: opts.GuardSettleTimeout, Logger: logger}
	pages := &PageHandlers{Renderer: renderer, Logger: logger}

	app := http.NewServeMux()
	app.HandleFunc("GET /{$}", pages.Home)
	registerAuthRoutes(app, auth)
	registerPortalRoutes(app, guard, pages)
	app.HandleFunc("/", pages.NotFound)

	var appHandler http.Handler = app
	appHandler = ClientSession(ClientSessionConfig{
		Stores:       opts.Stores,
		CookieDomain: opts.CookieDomain,
		MaxAge:       opts.ClientCookieMaxAge,
		Logger:       logger,
	})(appHandler)
	appHandler = CSRFProtection(CSRFConfig{CookieDomain: opts.CookieDomain})(appHandler)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", healthHandler)
	root.Handle("GET /readyz", newReadinessHandler(opts.ReadinessChecks, opts.ReadinessTimeout, logger))
	root.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))
	root.Handle("/", appHandler)

	var h http.Handler = root
	if opts.CompressionEnabled {
		h = Compression(CompressionConfig{Level: opts.CompressionLevel, Logger: logger})(h)
	}
	h = BrowserDetection()(h)
	h = Recover(logger)(h)
	h = Logging(logger)(h)
	return h, nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth", h.AuthPage)
	mux.HandleFunc("POST /auth/sign-in", h.SignIn)
	mux.HandleFunc("POST /auth/sign-up", h.SignUp)
	mux.HandleFunc("POST /auth/sign-out", h.SignOut)
	mux.HandleFunc("GET /api/auth/state", h.State)
}

// registerPortalRoutes puts every portal page behind a guard admitting only its role.
func registerPortalRoutes(mux *http.ServeMux, guard *Guard, pages *PageHandlers) {
	portal := http.HandlerFunc(pages.Portal)
	for _, p := range Portals() {
		protected := guard.RequireRoles(p.Role)(portal)
		for _, page := range p.Pages {
			mux.Handle("GET "+page.Path, protected)
		}
	}
}

func resolveAssets(opts RouterOptions) (fs.FS, fs.FS, error) {
	templateFS, staticFS := opts.TemplateFS, opts.StaticFS
	if templateFS == nil {
		sub, err := fs.Sub(acadvault.TemplateFS, "web/templates")
		if err != nil {
			return nil, nil, fmt.Errorf("embedded templates: %w", err)
		}
		templateFS = sub
	}
	if staticFS == nil {
		sub, err := fs.Sub(acadvault.StaticFS, "web/static")
		if err != nil {
			return nil, nil, fmt.Errorf("embedded static assets: %w", err)
		}
		staticFS = sub
	}
	return templateFS, staticFS, nil
}
