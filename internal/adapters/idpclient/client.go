// Package idpclient implements a per-user-agent identity provider client on top of a
// shared IdentityBackend. It persists the session under a client key, refreshes it
// when the access token lapses and fans session changes out to subscribers.
package idpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// Options configures a Client.
type Options struct {
	Backend    ports.IdentityBackend
	Storage    ports.SessionPersistence
	StorageKey string
	Clock      ports.Clock
	Logger     *slog.Logger
	// RefreshMargin refreshes tokens that expire within this window.
	RefreshMargin time.Duration
}

// Client implements ports.IdentityProvider for one user agent.
type Client struct {
	backend ports.IdentityBackend
	storage ports.SessionPersistence
	key     string
	clock   ports.Clock
	logger  *slog.Logger
	margin  time.Duration

	// opMu serialises storage mutations so concurrent refreshes do not consume a refresh token twice.
	opMu sync.Mutex

	mu        sync.Mutex
	listeners map[uint64]ports.SessionChangeFunc
	nextID    uint64
}

var _ ports.IdentityProvider = (*Client)(nil)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("identity backend is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("session storage is required")
	}
	if opts.StorageKey == "" {
		return nil, errors.New("storage key is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:   opts.Backend,
		storage:   opts.Storage,
		key:       opts.StorageKey,
		clock:     clock,
		logger:    logger.With("component", "idp_client"),
		margin:    opts.RefreshMargin,
		listeners: make(map[uint64]ports.SessionChangeFunc),
	}, nil
}

// OnSessionChange registers fn until the returned function is called.
func (c *Client) OnSessionChange(fn ports.SessionChangeFunc) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// CurrentSession returns the persisted session, refreshing it when the access token has lapsed.
// A session that cannot be refreshed is discarded and reported as signed out.
func (c *Client) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	sess, event, err := c.loadOrRefresh(ctx)
	if event != "" {
		c.emit(event, sess)
	}
	return sess, err
}

func (c *Client) loadOrRefresh(ctx context.Context) (*domainauth.Session, domainauth.SessionEvent, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess, err := c.storage.Load(ctx, c.key)
	if err != nil {
		return nil, "", apperrors.Unavailable(err, "Session storage is unavailable")
	}
	if sess == nil {
		return nil, "", nil
	}
	if !sess.Expired(c.clock.Now().Add(c.margin)) {
		if err := c.verify(ctx, sess); err != nil {
			if apperrors.IsUnavailable(err) {
				return nil, "", err
			}
			c.logger.WarnContext(ctx, "persisted session failed verification", "error", err)
			c.discard(ctx)
			return nil, domainauth.EventSignedOut, nil
		}
		return sess, "", nil
	}

	if sess.RefreshToken == "" {
		c.discard(ctx)
		return nil, domainauth.EventSignedOut, nil
	}

	refreshed, err := c.backend.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if apperrors.IsUnavailable(err) {
			// Keep the stored session so a later call can retry the refresh.
			return nil, "", err
		}
		c.logger.InfoContext(ctx, "session refresh rejected", "error", err)
		c.discard(ctx)
		return nil, domainauth.EventSignedOut, nil
	}
	c.persist(ctx, refreshed)
	return refreshed, domainauth.EventTokenRefreshed, nil
}

func (c *Client) verify(ctx context.Context, sess *domainauth.Session) error {
	v, ok := c.backend.(ports.SessionVerifier)
	if !ok {
		return nil
	}
	return v.VerifySession(ctx, sess)
}

// SignInWithPassword authenticates and, on success, persists the session and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	sess, err := c.backend.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.opMu.Lock()
	c.persist(ctx, sess)
	c.opMu.Unlock()

	c.emit(domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignUp registers a new identity. When the backend returns a session (no email
// confirmation required) the client is signed in immediately.
func (c *Client) SignUp(
	ctx context.Context,
	email, password string,
	meta domainauth.SignUpMetadata,
) (*domainauth.Session, error) {
	sess, err := c.backend.Register(ctx, ports.RegisterInput{Email: email, Password: password, Metadata: meta})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	c.opMu.Lock()
	c.persist(ctx, sess)
	c.opMu.Unlock()

	c.emit(domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session with the backend and always clears local state.
// The revoke error, if any, is returned after the local clear.
func (c *Client) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	sess, loadErr := c.storage.Load(ctx, c.key)
	var revokeErr error
	if sess != nil {
		revokeErr = c.backend.Revoke(ctx, sess)
	}
	c.discard(ctx)
	c.opMu.Unlock()

	c.emit(domainauth.EventSignedOut, nil)

	if err := errors.Join(loadErr, revokeErr); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) persist(ctx context.Context, sess *domainauth.Session) {
	if err := c.storage.Save(ctx, c.key, sess); err != nil {
		c.logger.WarnContext(ctx, "persist session failed", "error", err)
	}
}

func (c *Client) discard(ctx context.Context) {
	if err := c.storage.Delete(ctx, c.key); err != nil {
		c.logger.WarnContext(ctx, "delete session failed", "error", err)
	}
}

func (c *Client) emit(event domainauth.SessionEvent, sess *domainauth.Session) {
	c.mu.Lock()
	fns := make([]ports.SessionChangeFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.deliver(fn, event, sess)
	}
}

func (c *Client) deliver(fn ports.SessionChangeFunc, event domainauth.SessionEvent, sess *domainauth.Session) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session listener panicked", "event", event, "panic", r)
		}
	}()
	fn(event, sess)
}
