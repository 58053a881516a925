package handlers

import (
	"net/http"

	"transit-tracking-service/internal/tracking"
)

type HealthHandler struct {
	Store   *tracking.Store
	Manager *tracking.Manager
}

// Health is a liveness check that also reports the size of the live state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := map[string]any{
		"status":      "ok",
		"vehicles":    len(h.Store.ListAll()),
		"connections": h.Manager.Len(),
	}
	writeJSON(w, r, http.StatusOK, res)
}
