package handlers

import (
	"net/http"

	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/tracking"
)

type StatsHandler struct {
	Store    *tracking.Store
	Catalog  *tracking.RouteCatalog
	Registry *tracking.Registry
	Manager  *tracking.Manager
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var res dto.StatsResponse
	for _, v := range h.Store.ListAll() {
		res.TotalVehicles++
		if v.Status.IsActive() {
			res.ActiveVehicles++
		}
		if v.HasIncident() {
			res.OpenIncidents++
		}
	}
	res.TotalRoutes = len(routes)
	for _, rt := range routes {
		if rt.Active {
			res.ActiveRoutes++
		}
	}
	res.ConnectedClients = h.Manager.Len()
	_, res.Subscriptions = h.Registry.Count()

	writeJSON(w, r, http.StatusOK, res)
}
