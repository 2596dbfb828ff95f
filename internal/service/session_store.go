package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/observability/metrics"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// AuthState is a snapshot of a SessionStore.
type AuthState struct {
	Session       *domainauth.Session
	User          *domainauth.Identity
	Profile       *domainauth.Profile
	Loading       bool
	ProfileStatus ProfileStatus
}

// Authenticated reports whether a session is present.
func (s AuthState) Authenticated() bool { return s.Session != nil }

// Role returns the profile's role, or "" without a profile.
func (s AuthState) Role() domainauth.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func (s AuthState) IsAdmin() bool   { return s.Role() == domainauth.RoleAdmin }
func (s AuthState) IsFaculty() bool { return s.Role() == domainauth.RoleFaculty }
func (s AuthState) IsStudent() bool { return s.Role() == domainauth.RoleStudent }

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Provider ports.IdentityProvider
	Profiles ports.ProfileStore
	// SignUp validates sign-up requests. Defaults to a validator without a domain allow-list.
	SignUp              *SignUpValidator
	ProfileFetchTimeout time.Duration
	// RefreshMargin makes Revalidate re-read sessions expiring within this window.
	RefreshMargin time.Duration
	// Clock defaults to the system clock.
	Clock   ports.Clock
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// SessionStore tracks one user agent's identity provider session and the
// profile resolved for it. The provider listener is the only writer of the session.
type SessionStore struct {
	provider  ports.IdentityProvider
	resolver  *ProfileResolver
	validator *SignUpValidator
	clock     ports.Clock
	margin    time.Duration
	metrics   statsd.Sink
	logger    *slog.Logger

	mu           sync.Mutex
	session      *domainauth.Session
	eventSeq     uint64 // bumped by every session write
	started      bool
	initializing bool
	closed       bool
	unsubscribe  func()
	subscribers  map[uint64]func(AuthState)
	nextSubID    uint64
}

// NewSessionStore constructs a SessionStore. Call Initialize before use.
func NewSessionStore(opts SessionStoreOptions) (*SessionStore, error) {
	if opts.Provider == nil {
		return nil, errors.New("IdentityProvider is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := opts.SignUp
	if v == nil {
		var err error
		if v, err = NewSignUpValidator(nil); err != nil {
			return nil, err
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	// A store reports loading until Initialize has resolved the first session.
	s := &SessionStore{
		provider:     opts.Provider,
		validator:    v,
		clock:        clock,
		margin:       opts.RefreshMargin,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "session_store"),
		initializing: true,
		subscribers:  make(map[uint64]func(AuthState)),
	}
	resolver, err := NewProfileResolver(ProfileResolverOptions{
		Store:    opts.Profiles,
		Timeout:  opts.ProfileFetchTimeout,
		OnChange: s.notify,
		Metrics:  opts.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	s.resolver = resolver
	return s, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Initialize subscribes to the provider and loads the current session.
// It runs once; later calls return immediately. Failures to read the session
// are logged and leave the store anonymous.
func (s *SessionStore) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.unsubscribe = s.provider.OnSessionChange(s.handleSessionChange)
	seq := s.eventSeq
	s.mu.Unlock()
	s.notify()

	sess, err := s.provider.CurrentSession(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load current session", "error", err)
	} else if !s.applyRead(domainauth.EventInitialSession, sess, seq) {
		s.logger.DebugContext(ctx, "initial session superseded by a provider event")
	}

	s.mu.Lock()
	s.initializing = false
	s.mu.Unlock()
	s.notify()
}

func (s *SessionStore) handleSessionChange(event domainauth.SessionEvent, sess *domainauth.Session) {
	s.logger.Debug("session change", "event", event, "signed_in", sess != nil)
	s.write(event, sess)
}

// write applies a session change and notifies subscribers.
func (s *SessionStore) write(event domainauth.SessionEvent, sess *domainauth.Session) {
	s.mu.Lock()
	s.eventSeq++
	changed := s.applyLocked(event, sess)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// applyRead applies the result of a CurrentSession call started at seq. It is
// dropped when a write happened since, reporting false.
func (s *SessionStore) applyRead(event domainauth.SessionEvent, sess *domainauth.Session, seq uint64) bool {
	s.mu.Lock()
	if s.eventSeq != seq {
		s.mu.Unlock()
		return false
	}
	changed := s.applyLocked(event, sess)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return true
}

// applyLocked records sess and starts a profile fetch when the identity changed.
// Redundant events carrying the same access token and subject are ignored.
func (s *SessionStore) applyLocked(event domainauth.SessionEvent, sess *domainauth.Session) bool {
	if s.closed {
		return false
	}

	prev := s.session
	if prev.SameAs(sess) {
		return false
	}

	if sess == nil {
		s.session = nil
		s.resolver.OnIdentityChange(nil)
		return true
	}

	next := *sess
	s.session = &next
	sameSubject := prev != nil && prev.User.ID == next.User.ID
	if sameSubject && event == domainauth.EventTokenRefreshed {
		return true
	}
	user := next.User
	s.resolver.OnIdentityChange(&user)
	return true
}

// Revalidate re-reads the session from the provider when the cached access
// token has expired or expires within the refresh margin. The provider's
// TOKEN_REFRESHED or SIGNED_OUT event updates the state. When the provider
// cannot be reached, a session that is already past expiry is dropped.
func (s *SessionStore) Revalidate(ctx context.Context) AuthState {
	s.mu.Lock()
	cached := s.session
	if s.closed || s.initializing || cached == nil || !cached.Expired(s.clock.Now().Add(s.margin)) {
		st := s.stateLocked()
		s.mu.Unlock()
		return st
	}
	seq := s.eventSeq
	s.mu.Unlock()

	sess, err := s.provider.CurrentSession(ctx)
	switch {
	case err == nil:
		s.applyRead(domainauth.EventTokenRefreshed, sess, seq)
	case cached.Expired(s.clock.Now()):
		s.logger.WarnContext(ctx, "expired session could not be revalidated", "error", err)
		s.applyRead(domainauth.EventSignedOut, nil, seq)
	default:
		s.logger.InfoContext(ctx, "session revalidation deferred", "error", err)
	}
	return s.State()
}

// State returns a snapshot of the store.
func (s *SessionStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *SessionStore) stateLocked() AuthState {
	snap := s.resolver.Snapshot()
	st := AuthState{
		Loading:       s.initializing || snap.Loading,
		ProfileStatus: snap.Status,
	}
	if s.session == nil {
		return st
	}
	sess := *s.session
	user := sess.User
	st.Session = &sess
	st.User = &user
	if snap.Profile != nil && snap.SubjectID == user.ID {
		st.Profile = snap.Profile
	}
	return st
}

// Subscribe registers fn for state changes until cancel is called.
// fn runs synchronously on the goroutine that changed the state.
func (s *SessionStore) Subscribe(fn func(AuthState)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *SessionStore) notify() {
	s.mu.Lock()
	st := s.stateLocked()
	fns := make([]func(AuthState), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.deliver(fn, st)
	}
}

func (s *SessionStore) deliver(fn func(AuthState), st AuthState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state subscriber panicked", "panic", r)
		}
	}()
	fn(st)
}

// WaitSettled blocks until the store is no longer loading or ctx ends, and
// returns the state at that point.
func (s *SessionStore) WaitSettled(ctx context.Context) AuthState {
	settled := make(chan struct{}, 1)
	cancel := s.Subscribe(func(st AuthState) {
		if st.Loading {
			return
		}
		select {
		case settled <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if st := s.State(); !st.Loading {
		return st
	}
	select {
	case <-settled:
	case <-ctx.Done():
	}
	return s.State()
}

// SignIn authenticates with email and password. State changes arrive through
// the provider listener.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) (err error) {
	start := time.Now()
	defer func() {
		metrics.EmitAuthOperation(s.metrics, metrics.AuthMetric{Operation: "sign_in", Duration: time.Since(start), Err: err})
	}()

	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "Email is required")
	}
	if password == "" {
		return apperrors.ValidationField("password", "Password is required")
	}

	if _, err = s.provider.SignInWithPassword(ctx, email, password); err != nil {
		s.logger.InfoContext(ctx, "sign in failed", "code", apperrors.GetCode(err), "error", err)
		return structured(err)
	}
	return nil
}

// SignUp validates req and registers a new identity. The roll number is kept only for students.
func (s *SessionStore) SignUp(ctx context.Context, req SignUpRequest) (err error) {
	start := time.Now()
	defer func() {
		metrics.EmitAuthOperation(s.metrics, metrics.AuthMetric{Operation: "sign_up", Duration: time.Since(start), Err: err})
	}()

	if err = s.validator.Validate(req); err != nil {
		return err
	}
	meta := req.Metadata()
	if _, err = s.provider.SignUp(ctx, strings.TrimSpace(req.Email), req.Password, meta); err != nil {
		s.logger.InfoContext(ctx, "sign up failed", "code", apperrors.GetCode(err), "error", err)
		return structured(err)
	}
	s.logger.InfoContext(ctx, "sign up succeeded", "role", meta.Role)
	return nil
}

// SignOut revokes the session with the provider and clears local state even when revocation fails.
func (s *SessionStore) SignOut(ctx context.Context) error {
	err := s.provider.SignOut(ctx)
	metrics.EmitAuthOperation(s.metrics, metrics.AuthMetric{Operation: "sign_out", Err: err})
	if err != nil {
		s.logger.WarnContext(ctx, "sign out failed at provider", "error", err)
	}
	s.write(domainauth.EventSignedOut, nil)
	return err
}

// Close releases the provider subscription and discards in-flight profile fetches.
func (s *SessionStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.initializing = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subscribers = make(map[uint64]func(AuthState))
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.resolver.Close()
}

// WaitIdle blocks until in-flight profile fetches have finished.
func (s *SessionStore) WaitIdle() {
	s.resolver.Wait()
}

// structured ensures provider failures carry an application error code.
func structured(err error) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Something went wrong. Please try again.")
}
