package http

import (
	"encoding/json"
	"net/http"

	"flint/internal/domain/dashboard"
	"flint/internal/shared/middleware"
)

type DashboardHandler struct {
	merger *dashboard.Merger
	views  *ViewCache
}

func NewDashboardHandler(merger *dashboard.Merger, views *ViewCache) *DashboardHandler {
	return &DashboardHandler{merger: merger, views: views}
}

// HandleDashboard handles GET /api/dashboard. The view degrades per
// provider side instead of failing, so the response is always 200.
// Rendered views are cached per user for a short window.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if body, ok := h.views.get(r.Context(), userID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	body, err := json.Marshal(h.merger.BuildView(r.Context(), userID))
	if err != nil {
		writeError(w, err)
		return
	}
	h.views.put(r.Context(), userID, body)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
