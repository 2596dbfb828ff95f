package httpx

import (
	"log/slog"
	"net/http"
)

// PageHandlers serve the public pages and the portal page shells.
type PageHandlers struct {
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Home handles GET / with the portal chooser.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, basePageData(r, PageHome, "Home"))
}

// Portal renders the shell of the protected page at r.URL.Path.
// Access has already been decided by the guard.
func (h *PageHandlers) Portal(w http.ResponseWriter, r *http.Request) {
	page, nav, ok := portalNav(r.URL.Path)
	if !ok {
		h.NotFound(w, r)
		return
	}
	data := basePageData(r, PagePortal, page.Title)
	data.Description = page.Description
	data.Nav = nav
	h.render(w, r, http.StatusOK, data)
}

// NotFound renders the 404 page for browsers and a JSON error otherwise.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.logger().DebugContext(r.Context(), "route not found", "path", r.URL.Path)
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "route not found"})
		return
	}
	h.render(w, r, http.StatusNotFound, basePageData(r, PageNotFound, "Page not found"))
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	if err := h.Renderer.Render(w, status, data); err != nil {
		h.logger().ErrorContext(r.Context(), "failed to render page", "page", data.Page, "error", err)
	}
}
