package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the identity backend.
type AuthMode string

const (
	// AuthModeLocal stores accounts in Postgres and signs its own tokens.
	AuthModeLocal AuthMode = "local"
	// AuthModeOIDC delegates credentials to an external OpenID Connect provider.
	AuthModeOIDC AuthMode = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oidc":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, oidc)", v)
	}
}

// OIDCConfig contains OpenID Connect configuration (used when AUTH_MODE=oidc).
// Claim* fields are JMESPath expressions evaluated against the verified id_token claims
// and feed profile provisioning on first sign-in.
type OIDCConfig struct {
	IssuerURL       string `env:"ISSUER_URL"`
	ClientID        string `env:"CLIENT_ID"         envDefault:"acadvault"`
	ClientSecret    string `env:"CLIENT_SECRET"`
	Scope           string `env:"SCOPE"             envDefault:"openid profile email offline_access"`
	ClaimFullName   string `env:"CLAIM_FULL_NAME"   envDefault:"name"`
	ClaimRole       string `env:"CLAIM_ROLE"        envDefault:"acadvault_role"`
	ClaimDepartment string `env:"CLAIM_DEPARTMENT"  envDefault:"department"`
	ClaimRollNumber string `env:"CLAIM_ROLL_NUMBER" envDefault:"roll_number"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// TokenSecret signs access tokens in local mode.
	TokenSecret     string        `env:"AUTH_TOKEN_SECRET"`
	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL"  envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// RequireEmailConfirmation blocks sign-in until the email is verified and makes
	// sign-up return no session.
	RequireEmailConfirmation bool `env:"AUTH_REQUIRE_EMAIL_CONFIRMATION" envDefault:"false"`

	// SignUpAllowedDomains restricts sign-up to emails under these registrable domains.
	SignUpAllowedDomains []string `env:"AUTH_SIGNUP_ALLOWED_DOMAINS" envSeparator:","`

	ProfileFetchTimeout time.Duration `env:"AUTH_PROFILE_FETCH_TIMEOUT" envDefault:"5s"`
	GuardSettleTimeout  time.Duration `env:"AUTH_GUARD_SETTLE_TIMEOUT"  envDefault:"2s"`
	ProfileCacheTTL     time.Duration `env:"AUTH_PROFILE_CACHE_TTL"     envDefault:"5m"`

	// ClientCacheSize bounds the number of live per-browser session stores.
	ClientCacheSize int           `env:"AUTH_CLIENT_CACHE_SIZE" envDefault:"10000"`
	ClientIdleTTL   time.Duration `env:"AUTH_CLIENT_IDLE_TTL"   envDefault:"30m"`

	OIDC OIDCConfig `envPrefix:"OIDC_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModeLocal
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = time.Hour
	}
	if a.RefreshTokenTTL < a.AccessTokenTTL {
		a.RefreshTokenTTL = a.AccessTokenTTL
	}
	if a.ProfileFetchTimeout <= 0 {
		a.ProfileFetchTimeout = 5 * time.Second
	}
	if a.GuardSettleTimeout < 0 {
		a.GuardSettleTimeout = 0
	}
	if a.ClientCacheSize <= 0 {
		a.ClientCacheSize = 10000
	}
	if a.ClientIdleTTL <= 0 {
		a.ClientIdleTTL = 30 * time.Minute
	}

	domains := make([]string, 0, len(a.SignUpAllowedDomains))
	for _, d := range a.SignUpAllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	a.SignUpAllowedDomains = domains
}

// Validate reports configuration that cannot produce a working identity backend.
func (a *AuthConfig) Validate() error {
	switch a.Mode {
	case AuthModeLocal:
		if len(a.TokenSecret) < 32 {
			return fmt.Errorf("AUTH_TOKEN_SECRET must be at least 32 bytes in %s mode", a.Mode)
		}
	case AuthModeOIDC:
		if a.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required in %s mode", a.Mode)
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", a.Mode)
	}
	return nil
}
