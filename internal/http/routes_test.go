package httpx

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
)

func TestNewRouter_RequiresStores(t *testing.T) {
	_, err := NewRouter(RouterOptions{})
	require.Error(t, err)
}

func TestHealthz_NoClientCookie(t *testing.T) {
	app := newTestApp(t)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		req := httptest.NewRequest(method, "/healthz", nil)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Empty(t, rec.Result().Cookies(), method)
	}
	assert.Zero(t, app.registry.Len())
}

func TestHome_IssuesClientCookie(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Student portal")

	id := b.clientID()
	assert.Len(t, id, 36)

	b.get("/")
	assert.Equal(t, id, b.clientID())
	assert.Equal(t, 1, app.registry.Len())
}

func TestClientSession_ReplacesMalformedCookie(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()
	b.cookies[ClientCookieName] = &http.Cookie{Name: ClientCookieName, Value: "not-a-uuid"}

	b.get("/")
	assert.NotEqual(t, "not-a-uuid", b.clientID())
}

func TestGuard_AnonymousRedirectsToSignIn(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.get("/admin/users")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth?from=%2Fadmin%2Fusers", resp.Header.Get("Location"))
}

func TestGuard_APIClientsGetJSON(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.getJSON("/student/portfolio")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body guardBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "authentication_required", body.Error)
	assert.Equal(t, "/auth?from=%2Fstudent%2Fportfolio", body.RedirectTo)
}

func TestGuard_HTMXRedirect(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	req := httptest.NewRequest(http.MethodGet, "/faculty", nil)
	req.Header.Set("Hx-Request", "true")
	resp := b.do(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/auth?from=%2Ffaculty", resp.Header.Get("Hx-Redirect"))
}

func TestGuard_RoleMismatchLandsOnOwnPortal(t *testing.T) {
	app := newTestApp(t)
	app.addUser("prof@college.edu", "secret1", domainauth.RoleFaculty)
	b := app.newBrowser()
	b.signIn("prof@college.edu", "secret1")

	resp := b.get("/student")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/faculty", resp.Header.Get("Location"))

	resp = b.getJSON("/admin")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.get("/faculty/verify")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Verify achievements")
	assert.Contains(t, body, `href="/faculty/students"`)
}

func TestGuard_PlaceholderWhileProfileLoads(t *testing.T) {
	app := newTestApp(t, func(o *testAppOptions) { o.settle = 0 })
	app.addUser("stu@college.edu", "secret1", domainauth.RoleStudent)
	b := app.newBrowser()
	b.signIn("stu@college.edu", "secret1")

	release := make(chan struct{})
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	seeded, err := app.profiles.FindProfileBySubjectID(context.Background(), "sub-stu")
	require.NoError(t, err)
	app.profiles.FindFunc = func(context.Context, string) (*domainauth.Profile, error) {
		<-release
		return seeded, nil
	}

	// A token change for a new subject restarts the profile fetch.
	sess := app.provider(b.clientID()).Session
	next := *sess
	next.AccessToken = "rotated"
	next.User.ID = "sub-stu-2"
	app.provider(b.clientID()).Emit(domainauth.EventSignedIn, &next)

	resp := b.get("/student")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Refresh"))
	assert.Contains(t, readBody(t, resp), "Loading")

	close(release)
	b.store().WaitIdle()

	resp = b.get("/student")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Refresh"))
	assert.Contains(t, readBody(t, resp), "Student dashboard")
}

func TestSignIn_RedirectsToSafeFrom(t *testing.T) {
	app := newTestApp(t)
	app.addUser("stu@college.edu", "secret1", domainauth.RoleStudent)

	tests := []struct {
		from string
		want string
	}{
		{from: "/student/achievements", want: "/student/achievements"},
		{from: "", want: "/"},
		{from: "//evil.example/phish", want: "/"},
		{from: "https://evil.example", want: "/"},
	}
	for _, tt := range tests {
		b := app.newBrowser()
		resp := b.postForm("/auth/sign-in", url.Values{
			"email": {"stu@college.edu"}, "password": {"secret1"}, "from": {tt.from},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, tt.from)
		assert.Equal(t, tt.want, resp.Header.Get("Location"), tt.from)
	}
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	app := newTestApp(t)
	app.addUser("stu@college.edu", "secret1", domainauth.RoleStudent)
	b := app.newBrowser()

	resp := b.postForm("/auth/sign-in", url.Values{"email": {"stu@college.edu"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `value="stu@college.edu"`)

	resp = b.postJSON("/auth/sign-in", `{"email":"stu@college.edu","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "invalid_credentials", e.Error)
	assert.Equal(t, "Invalid login credentials", e.Message)
}

func TestSignIn_JSON(t *testing.T) {
	app := newTestApp(t)
	app.addUser("admin@college.edu", "secret1", domainauth.RoleAdmin)
	b := app.newBrowser()

	resp := b.postJSON("/auth/sign-in", `{"email":"admin@college.edu","password":"secret1","from":"/admin/reports"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body redirectBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/admin/reports", body.RedirectTo)

	b.store()
	resp = b.getJSON("/api/auth/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Authenticated)
	assert.True(t, st.IsAdmin)
	assert.False(t, st.IsStudent)
	assert.Equal(t, "admin", st.Role)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "Test sub-admin", st.Profile.FullName)
}

func TestCSRF_RejectsMissingToken(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()
	b.get("/")

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := b.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(DefaultCSRFHeaderName, "forged")
	resp = b.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSignUp_Form(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.postForm("/auth/sign-up", url.Values{
		"email":            {"new@college.edu"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
		"full_name":        {"New Student"},
		"role":             {"student"},
		"department":       {"Physics"},
		"roll_number":      {"PH-042"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), SignUpSuccessMessage)

	meta := app.provider(b.clientID()).LastSignUp
	require.NotNil(t, meta)
	require.NotNil(t, meta.RollNumber)
	assert.Equal(t, "PH-042", *meta.RollNumber)
}

func TestSignUp_JSONDropsRollNumberForFaculty(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.postJSON("/auth/sign-up", `{
		"email":"prof@college.edu","password":"secret1","confirm_password":"secret1",
		"full_name":"A Prof","role":"faculty","department":"Mathematics","roll_number":"X-1"
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body messageBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, SignUpSuccessMessage, body.Message)

	meta := app.provider(b.clientID()).LastSignUp
	require.NotNil(t, meta)
	assert.Nil(t, meta.RollNumber)
	assert.Equal(t, domainauth.RoleFaculty, meta.Role)
}

func TestSignUp_ValidationError(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.postJSON("/auth/sign-up", `{
		"email":"new@college.edu","password":"secret1","confirm_password":"secret2",
		"full_name":"New","role":"student"
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "validation", e.Error)
	assert.Equal(t, "confirm_password", e.Field)
	assert.Equal(t, "Passwords do not match", e.Message)

	resp = b.postForm("/auth/sign-up", url.Values{
		"email": {"new@college.edu"}, "password": {"secret1"}, "confirm_password": {"secret1"},
		"full_name": {"New"}, "role": {"dean"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Select a role")
	assert.Contains(t, body, `action="/auth/sign-up"`)
}

func TestSignOut_ClearsSession(t *testing.T) {
	app := newTestApp(t)
	app.addUser("stu@college.edu", "secret1", domainauth.RoleStudent)
	b := app.newBrowser()
	b.signIn("stu@college.edu", "secret1")
	require.True(t, b.store().State().Authenticated())

	resp := b.postForm("/auth/sign-out", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth", resp.Header.Get("Location"))
	assert.Zero(t, app.registry.Len())
	assert.False(t, b.store().State().Authenticated())

	resp = b.get("/student")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAuthPage(t *testing.T) {
	app := newTestApp(t)
	app.addUser("stu@college.edu", "secret1", domainauth.RoleStudent)
	b := app.newBrowser()

	resp := b.get("/auth?tab=sign-up&from=%2Fstudent")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `action="/auth/sign-up"`)
	assert.Contains(t, body, "Computer Science")

	resp = b.get("/auth?from=%2Fstudent")
	body = readBody(t, resp)
	assert.Contains(t, body, `action="/auth/sign-in"`)
	assert.Contains(t, body, `name="from" value="/student"`)

	b.signIn("stu@college.edu", "secret1")
	resp = b.get("/auth")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.get("/nowhere")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Oops! Page not found")

	resp = b.getJSON("/api/nowhere")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp = b.get("/student/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateAPI_Anonymous(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()

	resp := b.getJSON("/api/auth/state?wait=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var st StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.Authenticated)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Profile)
	assert.Equal(t, "none", st.ProfileStatus)
}

func TestStatic(t *testing.T) {
	app := newTestApp(t)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestRouter_Compression(t *testing.T) {
	app := newTestApp(t, func(o *testAppOptions) { o.compression = true })
	b := app.newBrowser()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Encoding", "gzip")
	resp := b.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	html, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(html), "AcadVault")
}

func TestSettledState_BoundedWait(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser()
	b.get("/")
	store := b.store()

	start := time.Now()
	st := settledState(context.Background(), store, 50*time.Millisecond)
	assert.False(t, st.Loading)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
