package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	mockauth "github.com/acadvault/acadvault-api/internal/mocks/auth"
	"github.com/acadvault/acadvault-api/internal/service"
)

type testAccount struct {
	password string
	subject  string
	role     domainauth.Role
}

// testApp is a router backed by fake identity providers, one per user agent,
// sharing a single account table and profile store.
type testApp struct {
	t        *testing.T
	handler  http.Handler
	registry *service.StoreRegistry
	profiles *mockauth.MemoryProfileStore

	mu        sync.Mutex
	accounts  map[string]testAccount
	providers map[string]*mockauth.FakeIdentityProvider
}

type testAppOptions struct {
	settle      time.Duration
	compression bool
}

func newTestApp(t *testing.T, opts ...func(*testAppOptions)) *testApp {
	t.Helper()
	o := testAppOptions{settle: time.Second}
	for _, fn := range opts {
		fn(&o)
	}

	app := &testApp{
		t:         t,
		profiles:  mockauth.NewMemoryProfileStore(),
		accounts:  map[string]testAccount{},
		providers: map[string]*mockauth.FakeIdentityProvider{},
	}
	reg, err := service.NewStoreRegistry(service.StoreRegistryOptions{Factory: app.factory, IdleTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	app.registry = reg

	h, err := NewRouter(RouterOptions{
		Stores:             reg,
		GuardSettleTimeout: o.settle,
		CompressionEnabled: o.compression,
	})
	require.NoError(t, err)
	app.handler = h
	return app
}

func (a *testApp) factory(clientID string) (*service.SessionStore, error) {
	p := mockauth.NewFakeIdentityProvider()
	p.SignInFunc = a.signIn
	p.SignUpFunc = func(context.Context, string, string, domainauth.SignUpMetadata) (*domainauth.Session, error) {
		return nil, nil
	}
	a.mu.Lock()
	a.providers[clientID] = p
	a.mu.Unlock()
	return service.NewSessionStore(service.SessionStoreOptions{Provider: p, Profiles: a.profiles})
}

func (a *testApp) signIn(_ context.Context, email, password string) (*domainauth.Session, error) {
	a.mu.Lock()
	acct, ok := a.accounts[email]
	a.mu.Unlock()
	if !ok || acct.password != password {
		return nil, apperrors.InvalidCredentials()
	}
	return &domainauth.Session{
		AccessToken: "token-" + acct.subject,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        domainauth.Identity{ID: acct.subject, Email: email},
	}, nil
}

// addUser registers credentials and the matching profile.
func (a *testApp) addUser(email, password string, role domainauth.Role) {
	subject := "sub-" + strings.Split(email, "@")[0]
	a.mu.Lock()
	a.accounts[email] = testAccount{password: password, subject: subject, role: role}
	a.mu.Unlock()
	a.profiles.Put(domainauth.Profile{ID: "p-" + subject, UserID: subject, Email: email, FullName: "Test " + subject, Role: role})
}

func (a *testApp) provider(clientID string) *mockauth.FakeIdentityProvider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.providers[clientID]
}

// browser is a user agent with a cookie jar. It never follows redirects.
type browser struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) newBrowser() *browser {
	return &browser{app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.app.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.app.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	b.app.t.Cleanup(func() { _ = resp.Body.Close() })
	for _, c := range resp.Cookies() {
		b.cookies[c.Name] = c
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html")
	return b.do(req)
}

func (b *browser) getJSON(path string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "application/json")
	return b.do(req)
}

// postForm submits a form like a browser, echoing the CSRF cookie in the form.
func (b *browser) postForm(path string, form url.Values) *http.Response {
	b.ensureCookies()
	form.Set(DefaultCSRFCookieName, b.cookies[DefaultCSRFCookieName].Value)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return b.do(req)
}

// postJSON posts a JSON body with the CSRF header set.
func (b *browser) postJSON(path, body string) *http.Response {
	b.ensureCookies()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(DefaultCSRFHeaderName, b.cookies[DefaultCSRFCookieName].Value)
	return b.do(req)
}

func (b *browser) ensureCookies() {
	if _, ok := b.cookies[DefaultCSRFCookieName]; !ok {
		b.get("/")
	}
}

func (b *browser) clientID() string {
	c, ok := b.cookies[ClientCookieName]
	require.True(b.app.t, ok, "client cookie not issued")
	return c.Value
}

// store returns the browser's SessionStore once it has settled.
func (b *browser) store() *service.SessionStore {
	b.app.t.Helper()
	s, err := b.app.registry.Get(b.clientID())
	require.NoError(b.app.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.WaitSettled(ctx)
	return s
}

func (b *browser) signIn(email, password string) {
	b.app.t.Helper()
	resp := b.postForm("/auth/sign-in", url.Values{"email": {email}, "password": {password}})
	require.Equal(b.app.t, http.StatusSeeOther, resp.StatusCode)
	b.store()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
