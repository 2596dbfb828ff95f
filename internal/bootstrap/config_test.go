package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadvault/acadvault-api/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUTH_MODE", "OIDC")
	t.Setenv("OIDC_ISSUER_URL", "https://login.college.edu")
	t.Setenv("AUTH_SIGNUP_ALLOWED_DOMAINS", " College.edu ,,uni.ac.uk")
	t.Setenv("AUTH_GUARD_SETTLE_TIMEOUT", "750ms")
	t.Setenv("HTTP_COMPRESSION_LEVEL", "42")
	t.Setenv("OBSERVABILITY_METRICS_ENABLED", "true")
	t.Setenv("OBSERVABILITY_METRICS_STATSD_ADDRESS", "  ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.AuthModeOIDC, cfg.Auth.Mode)
	assert.Equal(t, []string{"college.edu", "uni.ac.uk"}, cfg.Auth.SignUpAllowedDomains)
	assert.Equal(t, 750*time.Millisecond, cfg.Auth.GuardSettleTimeout)
	assert.Equal(t, 9, cfg.HTTP.CompressionLevel)
	assert.False(t, cfg.Observability.Metrics.IsEnabled())
	require.NoError(t, ValidateConfig(&cfg))
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "saml")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateConfig(t *testing.T) {
	require.Error(t, ValidateConfig(nil))

	cfg := config.AppConfig{Auth: config.AuthConfig{Mode: config.AuthModeLocal, TokenSecret: "short"}}
	err := ValidateConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_TOKEN_SECRET")

	cfg.Auth.TokenSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, ValidateConfig(&cfg))
}
