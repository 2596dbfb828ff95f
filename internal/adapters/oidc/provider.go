package oidc

// Package oidc provides an IdentityBackend that delegates credentials to an OpenID Connect provider.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// Backend implements ports.IdentityBackend with the resource owner password grant.
// Identities come from the verified id_token, falling back to the UserInfo endpoint.
type Backend struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider  *gooidc.Provider
	verifier      *gooidc.IDTokenVerifier
	revocationURL string

	claims      *ClaimMapper
	provisioner ports.ProfileProvisioner
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.IdentityBackend = (*Backend)(nil)

// BackendConfig holds configuration for the OIDC backend.
type BackendConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scope        string
	Claims       ClaimExpressions
	// Provisioner creates a profile on first sign-in when the claims name a role. Optional.
	Provisioner ports.ProfileProvisioner
	HTTPClient  *http.Client // Optional, defaults to a client with a 30s timeout
	Logger      *slog.Logger
}

type discoveryExtras struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// NewBackend performs discovery against the issuer and returns a ready backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mapper, err := NewClaimMapper(cfg.Claims)
	if err != nil {
		return nil, err
	}

	// Initialize go-oidc provider and verifier (single discovery fetch)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var extras discoveryExtras
	if claimsErr := op.Claims(&extras); claimsErr != nil {
		return nil, fmt.Errorf("decode discovery document: %w", claimsErr)
	}

	return &Backend{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:    httpClient,
		oidcProvider:  op,
		verifier:      op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		revocationURL: extras.RevocationEndpoint,
		claims:        mapper,
		provisioner:   cfg.Provisioner,
		logger:        logger.With("component", "oidc_backend"),
		now:           time.Now,
	}, nil
}

func (b *Backend) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

// PasswordGrant exchanges email and password for tokens.
func (b *Backend) PasswordGrant(ctx context.Context, email, password string) (*domainauth.Session, error) {
	ctx = b.clientContext(ctx)
	tok, err := b.config.PasswordCredentialsToken(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, mapTokenError(err)
	}
	sess, err := b.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	b.provision(ctx, sess)
	return sess, nil
}

// Register is not offered: accounts are managed by the identity provider.
func (b *Backend) Register(context.Context, ports.RegisterInput) (*domainauth.Session, error) {
	return nil, apperrors.New(apperrors.ErrCodeSignUpDisabled,
		"Sign up is managed by your institution's identity provider")
}

// Refresh redeems refreshToken for a new token set.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	ctx = b.clientContext(ctx)
	tok, err := b.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapTokenError(err)
	}
	return b.sessionFromToken(ctx, tok)
}

// Revoke revokes the refresh token when the provider advertises a revocation endpoint.
func (b *Backend) Revoke(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil || sess.RefreshToken == "" || b.revocationURL == "" {
		return nil
	}
	form := url.Values{
		"token":           {sess.RefreshToken},
		"token_type_hint": {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(b.config.ClientID), url.QueryEscape(b.config.ClientSecret))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return apperrors.Unavailable(err, "Identity provider is unavailable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("token revocation returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *Backend) sessionFromToken(ctx context.Context, tok *oauth2.Token) (*domainauth.Session, error) {
	claims, err := b.identityClaims(ctx, tok)
	if err != nil {
		return nil, err
	}

	identity, err := identityFromClaims(claims, b.now())
	if err != nil {
		return nil, err
	}
	if meta, mapErr := b.claims.Map(claims); mapErr == nil {
		identity.Metadata = meta
	} else {
		b.logger.WarnContext(ctx, "claim mapping failed", "error", mapErr)
	}

	expiresAt := b.now().Add(time.Hour)
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	}
	return &domainauth.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    firstNonEmpty(tok.TokenType, "bearer"),
		ExpiresAt:    expiresAt,
		User:         identity,
	}, nil
}

// identityClaims returns verified id_token claims, or UserInfo claims when no id_token was issued.
func (b *Backend) identityClaims(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	claims := map[string]any{}
	if rawID, ok := tok.Extra("id_token").(string); ok && rawID != "" {
		idTok, err := b.verifier.Verify(ctx, rawID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Invalid login credentials")
		}
		if err := idTok.Claims(&claims); err != nil {
			return nil, fmt.Errorf("parse id_token claims: %w", err)
		}
		return claims, nil
	}

	ui, err := b.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, apperrors.Unavailable(err, "Identity provider is unavailable")
	}
	if err := ui.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return claims, nil
}

// provision creates a profile for first-time users whose claims carry a role.
// Failures are logged; the profile resolver reports the profile as missing.
func (b *Backend) provision(ctx context.Context, sess *domainauth.Session) {
	if b.provisioner == nil || !sess.User.Metadata.Role.Valid() {
		return
	}
	if _, err := b.provisioner.ProvisionProfile(ctx, sess.User, sess.User.Metadata); err != nil {
		b.logger.WarnContext(ctx, "profile provisioning failed", "user_id", sess.User.ID, "error", err)
	}
}

func identityFromClaims(claims map[string]any, now time.Time) (domainauth.Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domainauth.Identity{}, errors.New("token claims carry no subject")
	}
	email, _ := claims["email"].(string)
	identity := domainauth.Identity{ID: sub, Email: email}
	if verified, _ := claims["email_verified"].(bool); verified {
		at := now.UTC()
		identity.EmailConfirmedAt = &at
	}
	return identity, nil
}

// mapTokenError turns token endpoint failures into application errors.
// Client errors mean the credentials or refresh token were rejected.
func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Invalid login credentials")
	}
	return apperrors.Unavailable(err, "Identity provider is unavailable")
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
