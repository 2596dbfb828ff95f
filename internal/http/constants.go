package httpx

import domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"

// Page identifiers used by handlers and the layout template.
const (
	PageHome     = "home"
	PageAuth     = "auth"
	PageLoading  = "loading"
	PageNotFound = "notfound"
	PagePortal   = "portal"
)

// Auth page tabs.
const (
	TabSignIn = "sign-in"
	TabSignUp = "sign-up"
)

// SignUpSuccessMessage is shown after a successful registration.
const SignUpSuccessMessage = "Account created successfully! Please check your email for verification."

// ClientCookieName identifies the user agent whose SessionStore serves a request.
const ClientCookieName = "acadvault_client"

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageHome:     "home-content",
	PageAuth:     "auth-content",
	PageLoading:  "loading-content",
	PageNotFound: "notfound-content",
	PagePortal:   "portal-content",
}

// ContentTemplateFor returns the content template for a page.
// Unknown pages fall back to the not-found content.
func ContentTemplateFor(page string) string {
	if name, ok := contentTemplates[page]; ok {
		return name
	}
	return "notfound-content"
}

// PortalPage is one protected page of a role portal.
type PortalPage struct {
	Path        string
	Label       string
	Title       string
	Description string
}

// Portal groups the pages visible to one role.
type Portal struct {
	Role  domainauth.Role
	Pages []PortalPage
}

// Portals returns the protected route table.
func Portals() []Portal {
	return []Portal{
		{
			Role: domainauth.RoleStudent,
			Pages: []PortalPage{
				{Path: "/student", Label: "Dashboard", Title: "Student dashboard", Description: "Your recent activity at a glance."},
				{Path: "/student/achievements", Label: "Achievements", Title: "Achievements", Description: "Record certifications, awards and competitions."},
				{Path: "/student/portfolio", Label: "Portfolio", Title: "Portfolio", Description: "Curate verified achievements into a shareable portfolio."},
				{Path: "/student/academics", Label: "Academics", Title: "Academics", Description: "Grades and course records."},
				{Path: "/student/settings", Label: "Settings", Title: "Settings", Description: "Profile and notification preferences."},
				{Path: "/student/support", Label: "Support", Title: "Support", Description: "Get help from the AcadVault team."},
			},
		},
		{
			Role: domainauth.RoleFaculty,
			Pages: []PortalPage{
				{Path: "/faculty", Label: "Dashboard", Title: "Faculty dashboard", Description: "Pending verifications and student activity."},
				{Path: "/faculty/verify", Label: "Verify", Title: "Verify achievements", Description: "Review achievements submitted by students."},
				{Path: "/faculty/students", Label: "Students", Title: "Students", Description: "Students in your department."},
			},
		},
		{
			Role: domainauth.RoleAdmin,
			Pages: []PortalPage{
				{Path: "/admin", Label: "Dashboard", Title: "Admin dashboard", Description: "Institution-wide overview."},
				{Path: "/admin/users", Label: "Users", Title: "Users", Description: "Manage student, faculty and admin accounts."},
				{Path: "/admin/reports", Label: "Reports", Title: "Reports", Description: "Accreditation and activity reports."},
			},
		},
	}
}
