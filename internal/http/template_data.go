package httpx

import (
	"net/http"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/service"
)

// PageData is the view model every page template receives.
type PageData struct {
	Title          string
	Page           string
	Description    string
	State          StateView
	CSRFToken      string
	Nav            []NavLink
	RefreshSeconds int

	// Auth page.
	Tab         string
	From        string
	Error       string
	ErrorField  string
	Notice      string
	Form        FormValues
	Roles       []domainauth.Role
	Departments []string
}

// NavLink is one sidebar entry.
type NavLink struct {
	Href   string
	Label  string
	Active bool
}

// FormValues echoes non-secret sign-in and sign-up input back into the form.
type FormValues struct {
	Email      string
	FullName   string
	Role       string
	Department string
	RollNumber string
}

// StateView is the public projection of service.AuthState. Tokens never leave the server.
type StateView struct {
	Authenticated  bool         `json:"authenticated"`
	Loading        bool         `json:"loading"`
	UserID         string       `json:"user_id,omitempty"`
	Email          string       `json:"email,omitempty"`
	EmailConfirmed bool         `json:"email_confirmed"`
	ProfileStatus  string       `json:"profile_status"`
	Profile        *ProfileView `json:"profile,omitempty"`
	Role           string       `json:"role,omitempty"`
	IsAdmin        bool         `json:"is_admin"`
	IsFaculty      bool         `json:"is_faculty"`
	IsStudent      bool         `json:"is_student"`
}

// ProfileView is the public projection of a profile.
type ProfileView struct {
	ID         string  `json:"id"`
	FullName   string  `json:"full_name"`
	Email      string  `json:"email,omitempty"`
	Role       string  `json:"role"`
	Department *string `json:"department,omitempty"`
	RollNumber *string `json:"roll_number,omitempty"`
}

// NewStateView projects st for templates and JSON responses.
func NewStateView(st service.AuthState) StateView {
	v := StateView{
		Authenticated: st.Authenticated(),
		Loading:       st.Loading,
		ProfileStatus: string(st.ProfileStatus),
		Role:          string(st.Role()),
		IsAdmin:       st.IsAdmin(),
		IsFaculty:     st.IsFaculty(),
		IsStudent:     st.IsStudent(),
	}
	if st.User != nil {
		v.UserID = st.User.ID
		v.Email = st.User.Email
		v.EmailConfirmed = st.User.EmailConfirmed()
	}
	if p := st.Profile; p != nil {
		v.Profile = &ProfileView{
			ID:         p.ID,
			FullName:   p.FullName,
			Email:      p.Email,
			Role:       string(p.Role),
			Department: p.Department,
			RollNumber: p.RollNumber,
		}
	}
	return v
}

// basePageData fills the fields shared by every page.
func basePageData(r *http.Request, page, title string) PageData {
	data := PageData{Title: title, Page: page, CSRFToken: GetCSRFToken(r)}
	if store, ok := StoreFromContext(r.Context()); ok {
		data.State = NewStateView(store.State())
	}
	return data
}

// portalNav builds the sidebar for the portal that owns path.
func portalNav(path string) (PortalPage, []NavLink, bool) {
	for _, portal := range Portals() {
		for _, page := range portal.Pages {
			if page.Path != path {
				continue
			}
			links := make([]NavLink, 0, len(portal.Pages))
			for _, p := range portal.Pages {
				links = append(links, NavLink{Href: p.Path, Label: p.Label, Active: p.Path == path})
			}
			return page, links, true
		}
	}
	return PortalPage{}, nil, false
}
