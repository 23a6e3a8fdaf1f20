package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hazardwatch/apiserver/internal/access"
	"github.com/hazardwatch/apiserver/internal/metrics"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/session"
	"github.com/hazardwatch/apiserver/types"
)

const (
	landingPath = "/"
	signInPath  = "/auth"

	allDepartmentsTitle = "All Departments"
)

// AdminHandler serves the department dashboards.
type AdminHandler struct {
	complaints *services.ComplaintService
}

func NewAdminHandler(complaints *services.ComplaintService) *AdminHandler {
	return &AdminHandler{complaints: complaints}
}

// AdminRouter registers admin routes on the given router.
func AdminRouter(r chi.Router, handler *AdminHandler) {
	r.With(Guard(access.AnyAdmin)).Get("/", handler.Dashboard)
	r.With(RequireAuth).Get("/complaints", handler.List)
	r.With(Guard(access.CategoryPage(types.CategoryRoads))).Get("/roads", handler.DepartmentPage(types.CategoryRoads))
	r.With(Guard(access.CategoryPage(types.CategoryWaste))).Get("/waste", handler.DepartmentPage(types.CategoryWaste))
	r.With(Guard(access.CategoryPage(types.CategoryElectricity))).Get("/electricity", handler.DepartmentPage(types.CategoryElectricity))
	r.With(Guard(access.SuperPage)).Get("/super", handler.SuperPage)
}

// Guard applies a page rule. Anonymous callers are sent to sign-in and
// callers outside the rule to the landing page.
func Guard(rule access.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := session.FromContext(r.Context())
			if !snap.Authenticated() {
				http.Redirect(w, r, signInPath, http.StatusSeeOther)
				return
			}
			decision := snap.Guard(rule)
			metrics.RecordAuthorizationDecision("page", decision == access.Allow)
			switch decision {
			case access.Allow:
				next.ServeHTTP(w, r)
			case access.Pending:
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "roles are still loading")
			default:
				http.Redirect(w, r, landingPath, http.StatusSeeOther)
			}
		})
	}
}

// List returns complaints visible to the caller's admin scope, filtered
// by the optional category query parameter.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	var category *types.Category
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" && raw != "all" {
		parsed, err := types.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category")
			return
		}
		category = &parsed
	}

	listing, err := h.complaints.ListForAdmin(r.Context(), session.FromContext(r.Context()), category)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Dashboard is the admin landing page: a scoped admin sees their own
// department and a super admin sees every department.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	listing, err := h.complaints.ListForAdmin(r.Context(), session.FromContext(r.Context()), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	title := allDepartmentsTitle
	if listing.Category != nil {
		title = listing.Category.Label()
	}
	writeJSON(w, http.StatusOK, DepartmentResponse{Title: title, AdminListing: listing})
}

// DepartmentPage returns the dashboard for one category.
func (h *AdminHandler) DepartmentPage(category types.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := h.complaints.ListForAdmin(r.Context(), session.FromContext(r.Context()), &category)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, DepartmentResponse{
			Title:        category.Label(),
			AdminListing: listing,
		})
	}
}

// SuperPage returns every complaint with per-category counts.
func (h *AdminHandler) SuperPage(w http.ResponseWriter, r *http.Request) {
	listing, err := h.complaints.ListForAdmin(r.Context(), session.FromContext(r.Context()), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DepartmentResponse{
		Title:        allDepartmentsTitle,
		AdminListing: listing,
	})
}

type DepartmentResponse struct {
	Title string `json:"title"`
	services.AdminListing
}
