package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/service"
)

// AuthHandlers serves the sign-in page and the sign-in, sign-up and sign-out endpoints.
// Every handler acts on the SessionStore of the requesting user agent.
type AuthHandlers struct {
	Renderer      *TemplateRenderer
	Stores        StoreSource
	SettleTimeout time.Duration
	Logger        *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// AuthPage handles GET /auth?tab=<sign-in|sign-up>&from=<path>.
// A signed-in user is sent to the home page.
func (h *AuthHandlers) AuthPage(w http.ResponseWriter, r *http.Request) {
	store := MustStoreFromContext(r.Context())
	st := settledState(r.Context(), store, h.SettleTimeout)
	if !st.Loading && st.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	h.render(w, r, http.StatusOK, h.pageData(r, q.Get("tab"), q.Get("from")))
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type redirectBody struct {
	RedirectTo string `json:"redirect_to"`
}

type messageBody struct {
	Message string `json:"message"`
}

// SignIn handles POST /auth/sign-in with a form or JSON body.
// On success it redirects to the local path in "from", or "/".
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	store := MustStoreFromContext(r.Context())
	asJSON := wantsJSON(r)

	var req signInRequest
	if isJSONBody(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		req = signInRequest{
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
			From:     r.PostFormValue("from"),
		}
	}

	if err := store.SignIn(r.Context(), req.Email, req.Password); err != nil {
		if asJSON {
			WriteAppError(w, err)
			return
		}
		data := h.pageData(r, TabSignIn, req.From)
		data.Form.Email = req.Email
		setFormError(&data, err)
		h.render(w, r, StatusForError(err), data)
		return
	}

	target := service.SafeReturnPath(req.From, "/")
	if asJSON {
		WriteJSON(w, http.StatusOK, redirectBody{RedirectTo: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SignUp handles POST /auth/sign-up with a form or JSON body.
func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	store := MustStoreFromContext(r.Context())
	asJSON := wantsJSON(r)

	var req service.SignUpRequest
	if isJSONBody(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		req = service.SignUpRequest{
			Email:           r.PostFormValue("email"),
			Password:        r.PostFormValue("password"),
			ConfirmPassword: r.PostFormValue("confirm_password"),
			FullName:        r.PostFormValue("full_name"),
			Role:            r.PostFormValue("role"),
			Department:      r.PostFormValue("department"),
			RollNumber:      r.PostFormValue("roll_number"),
		}
	}

	if err := store.SignUp(r.Context(), req); err != nil {
		if asJSON {
			WriteAppError(w, err)
			return
		}
		data := h.pageData(r, TabSignUp, "")
		data.Form = FormValues{
			Email:      req.Email,
			FullName:   req.FullName,
			Role:       req.Role,
			Department: req.Department,
			RollNumber: req.RollNumber,
		}
		setFormError(&data, err)
		h.render(w, r, StatusForError(err), data)
		return
	}

	if asJSON {
		WriteJSON(w, http.StatusCreated, messageBody{Message: SignUpSuccessMessage})
		return
	}
	data := h.pageData(r, TabSignIn, "")
	data.Notice = SignUpSuccessMessage
	h.render(w, r, http.StatusOK, data)
}

// SignOut handles POST /auth/sign-out. Local state is cleared even when the
// identity provider could not be reached.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	store := MustStoreFromContext(r.Context())
	if err := store.SignOut(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "sign out completed locally only", "error", err)
	}
	if id := ClientIDFromContext(r.Context()); id != "" && h.Stores != nil {
		h.Stores.Remove(id)
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, redirectBody{RedirectTo: service.SignInPath})
		return
	}
	if IsHTMX(r) {
		SetHXRedirect(w, service.SignInPath)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, service.SignInPath, http.StatusSeeOther)
}

// State handles GET /api/auth/state.
func (h *AuthHandlers) State(w http.ResponseWriter, r *http.Request) {
	store := MustStoreFromContext(r.Context())
	var st service.AuthState
	if r.URL.Query().Get("wait") == "true" {
		st = settledState(r.Context(), store, h.SettleTimeout)
	} else {
		st = store.Revalidate(r.Context())
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, NewStateView(st))
}

func (h *AuthHandlers) pageData(r *http.Request, tab, from string) PageData {
	if tab != TabSignUp {
		tab = TabSignIn
	}
	title := "Sign in"
	if tab == TabSignUp {
		title = "Sign up"
	}
	data := basePageData(r, PageAuth, title)
	data.Tab = tab
	data.From = service.SafeReturnPath(from, "")
	data.Roles = domainauth.Roles()
	data.Departments = domainauth.Departments
	return data
}

func (h *AuthHandlers) render(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	if h.Renderer == nil {
		WriteJSON(w, status, NewStateView(MustStoreFromContext(r.Context()).State()))
		return
	}
	if err := h.Renderer.Render(w, status, data); err != nil {
		h.logger().ErrorContext(r.Context(), "failed to render auth page", "error", err)
	}
}

func setFormError(data *PageData, err error) {
	data.Error = apperrors.UserMessage(err, "Something went wrong. Please try again.")
	data.ErrorField = apperrors.GetField(err)
}

func isJSONBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
