package http

import (
	"net/http"

	"horizon/internal/domain/dashboard"
)

type DashboardHandler struct {
	dashboard *dashboard.Service
	errors    *Errors
}

func NewDashboardHandler(dashboard *dashboard.Service, errors *Errors) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, errors: errors}
}

// HandleDashboard handles GET /api/dashboard
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := h.dashboard.Build(r.Context())
	if err != nil {
		h.errors.Write(w, "build dashboard", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
