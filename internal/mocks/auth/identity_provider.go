package auth

import (
	"context"
	"sync"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/ports"
)

var _ ports.IdentityProvider = (*FakeIdentityProvider)(nil)

// FakeIdentityProvider is a scriptable ports.IdentityProvider.
// Emit delivers events synchronously to every listener, like a real client.
type FakeIdentityProvider struct {
	mu        sync.Mutex
	listeners map[int]ports.SessionChangeFunc
	nextID    int

	Session    *domainauth.Session
	SessionErr error

	SignInFunc  func(ctx context.Context, email, password string) (*domainauth.Session, error)
	SignUpFunc  func(ctx context.Context, email, password string, meta domainauth.SignUpMetadata) (*domainauth.Session, error)
	SignOutFunc func(ctx context.Context) error

	SignOutCalls int
	LastSignUp   *domainauth.SignUpMetadata
}

// NewFakeIdentityProvider creates a provider with no session.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{listeners: make(map[int]ports.SessionChangeFunc)}
}

func (f *FakeIdentityProvider) CurrentSession(context.Context) (*domainauth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Session, f.SessionErr
}

func (f *FakeIdentityProvider) OnSessionChange(fn ports.SessionChangeFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Listeners reports the number of active subscriptions.
func (f *FakeIdentityProvider) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Emit records sess as current and notifies listeners.
func (f *FakeIdentityProvider) Emit(event domainauth.SessionEvent, sess *domainauth.Session) {
	f.mu.Lock()
	f.Session = sess
	fns := make([]ports.SessionChangeFunc, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

func (f *FakeIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	if f.SignInFunc == nil {
		return nil, nil
	}
	sess, err := f.SignInFunc(ctx, email, password)
	if err != nil {
		return nil, err
	}
	f.Emit(domainauth.EventSignedIn, sess)
	return sess, nil
}

func (f *FakeIdentityProvider) SignUp(
	ctx context.Context,
	email, password string,
	meta domainauth.SignUpMetadata,
) (*domainauth.Session, error) {
	f.mu.Lock()
	f.LastSignUp = &meta
	f.mu.Unlock()
	if f.SignUpFunc == nil {
		return nil, nil
	}
	sess, err := f.SignUpFunc(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		f.Emit(domainauth.EventSignedIn, sess)
	}
	return sess, nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.SignOutCalls++
	fn := f.SignOutFunc
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx)
	}
	if err == nil {
		f.Emit(domainauth.EventSignedOut, nil)
	}
	return err
}
