package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

type VehicleHandler struct {
	Store   *tracking.Store
	Catalog *tracking.RouteCatalog
	Gateway *tracking.Gateway
}

func (h *VehicleHandler) list(w http.ResponseWriter, r *http.Request, vs []domain.VehicleState) {
	vehicles := dto.NewActiveVehicles(h.Catalog.Annotate(r.Context(), vs))
	writeJSON(w, r, http.StatusOK, dto.ListVehiclesResponse{Count: len(vehicles), Vehicles: vehicles})
}

func (h *VehicleHandler) one(w http.ResponseWriter, r *http.Request, status int, v domain.VehicleState) {
	annotated := h.Catalog.Annotate(r.Context(), []domain.VehicleState{v})
	writeJSON(w, r, status, dto.VehicleResponse{Vehicle: dto.NewActiveVehicle(annotated[0])})
}

// List returns every vehicle, including inactive and maintenance ones.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Store.ListAll())
}

// Active returns the live fleet (active and en-route) with route display data.
func (h *VehicleHandler) Active(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Store.ListActive())
}

func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.one(w, r, http.StatusOK, v)
}

func (h *VehicleHandler) ETA(w http.ResponseWriter, r *http.Request) {
	v, err := h.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !v.HasRoute() {
		writeDomainError(w, r, fmt.Errorf("eta vehicle_id=%s: no route: %w", v.ID, domain.ErrNotFound))
		return
	}
	route, err := h.Catalog.Route(r.Context(), v.RouteID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	eta, err := tracking.EstimateETA(v, route)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.NewETA(eta))
}

func editFromRequest(op tracking.EditOp, id string, req dto.VehicleRequest) tracking.AdminEdit {
	return tracking.AdminEdit{
		Op:           op,
		VehicleID:    id,
		Registration: req.Registration,
		Type:         req.Type,
		Capacity:     req.Capacity,
		RouteID:      req.RouteID,
		Status:       req.Status,
	}
}

func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req dto.VehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.Gateway.Apply(r.Context(), editFromRequest(tracking.EditCreate, strings.TrimSpace(req.ID), req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.one(w, r, http.StatusCreated, v)
}

func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req dto.VehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if req.ID != "" && req.ID != id {
		writeDomainError(w, r, domain.NewValidationError("id", "does not match the path"))
		return
	}

	v, err := h.Gateway.Apply(r.Context(), editFromRequest(tracking.EditUpsert, id, req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.one(w, r, http.StatusOK, v)
}

func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	v, err := h.Gateway.Apply(r.Context(), tracking.AdminEdit{Op: tracking.EditDelete, VehicleID: r.PathValue("id")})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.VehicleResponse{Vehicle: dto.NewVehicle(v)})
}

// Location accepts a position report from an admin or an assigned driver.
func (h *VehicleHandler) Location(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := requireReporter(r, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req dto.LocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.Gateway.ApplyLocation(r.Context(), tracking.LocationUpdate{
		VehicleID: id,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Speed:     req.Speed,
		Heading:   req.Heading,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.one(w, r, http.StatusOK, v)
}

func (h *VehicleHandler) Incident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := requireReporter(r, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req dto.IncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.Gateway.ReportIncident(r.Context(), tracking.IncidentReport{
		VehicleID:   id,
		Incident:    req.IncidentStatus,
		Description: req.IncidentDescription,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.one(w, r, http.StatusOK, v)
}
