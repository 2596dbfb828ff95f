package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/acadvault/acadvault-api/config"
	"github.com/acadvault/acadvault-api/internal/adapters/localauth"
	"github.com/acadvault/acadvault-api/internal/adapters/oidc"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// IdentityDeps groups what the identity backend needs.
type IdentityDeps struct {
	Auth config.AuthConfig
	// Accounts backs local mode.
	Accounts localauth.Accounts
	// Provisioner creates profiles for OIDC identities on first sign-in.
	Provisioner ports.ProfileProvisioner
	Clock       ports.Clock
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// NewIdentityBackend builds the backend selected by AUTH_MODE.
//
//nolint:ireturn // the backend implementation depends on configuration.
func NewIdentityBackend(ctx context.Context, deps IdentityDeps) (ports.IdentityBackend, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := deps.Auth.Validate(); err != nil {
		return nil, err
	}

	switch deps.Auth.Mode {
	case config.AuthModeLocal:
		return newLocalBackend(deps, logger)
	case config.AuthModeOIDC:
		return newOIDCBackend(ctx, deps, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", deps.Auth.Mode)
	}
}

func newLocalBackend(deps IdentityDeps, logger *slog.Logger) (*localauth.Backend, error) {
	if deps.Accounts == nil {
		return nil, errors.New("accounts repository is required in local mode")
	}
	tokens, err := localauth.NewTokenIssuer(deps.Auth.TokenSecret, deps.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}
	backend, err := localauth.New(localauth.Options{
		Accounts:                 deps.Accounts,
		Tokens:                   tokens,
		RefreshTTL:               deps.Auth.RefreshTokenTTL,
		RequireEmailConfirmation: deps.Auth.RequireEmailConfirmation,
		Clock:                    deps.Clock,
		Logger:                   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create local identity backend: %w", err)
	}
	logger.Info("identity backend ready", "mode", config.AuthModeLocal,
		"require_email_confirmation", deps.Auth.RequireEmailConfirmation)
	return backend, nil
}

func newOIDCBackend(ctx context.Context, deps IdentityDeps, logger *slog.Logger) (*oidc.Backend, error) {
	cfg := deps.Auth.OIDC
	backend, err := oidc.NewBackend(ctx, oidc.BackendConfig{
		IssuerURL:    cfg.IssuerURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		Claims: oidc.ClaimExpressions{
			FullName:   cfg.ClaimFullName,
			Role:       cfg.ClaimRole,
			Department: cfg.ClaimDepartment,
			RollNumber: cfg.ClaimRollNumber,
		},
		Provisioner: deps.Provisioner,
		HTTPClient:  deps.HTTPClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create oidc identity backend: %w", err)
	}
	logger.Info("identity backend ready", "mode", config.AuthModeOIDC, "issuer", cfg.IssuerURL)
	return backend, nil
}
