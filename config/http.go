package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain scopes the client and CSRF cookies. Empty means host-only.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// ClientCookieMaxAge is how long a browser keeps its client id, and with it
	// the persisted session it is keyed to.
	ClientCookieMaxAge time.Duration `env:"APP_CLIENT_COOKIE_MAX_AGE" envDefault:"720h"`

	// ReadinessTimeout bounds each dependency check behind /readyz.
	ReadinessTimeout time.Duration `env:"HTTP_READINESS_TIMEOUT" envDefault:"2s"`

	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`
	// CompressionLevel is a gzip level, clamped to 1-9.
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	if h.ClientCookieMaxAge < time.Hour {
		h.ClientCookieMaxAge = time.Hour
	}
	if h.ReadinessTimeout <= 0 {
		h.ReadinessTimeout = 2 * time.Second
	}
	h.CompressionLevel = min(max(h.CompressionLevel, 1), 9)
}
