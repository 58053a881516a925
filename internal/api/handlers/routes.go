package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

type RouteHandler struct {
	Catalog *tracking.RouteCatalog
	Store   *tracking.Store

	validate *validator.Validate
}

func NewRouteHandler(catalog *tracking.RouteCatalog, store *tracking.Store) *RouteHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RouteHandler{Catalog: catalog, Store: store, validate: v}
}

func (h *RouteHandler) check(req dto.RouteRequest) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewValidationError("route", err.Error())
	}
	ve := &domain.ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, domain.FieldError{Field: fe.Field(), Reason: "failed " + fe.Tag()})
	}
	return ve
}

func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res := dto.ListRoutesResponse{Count: len(routes), Routes: make([]dto.Route, 0, len(routes))}
	for _, rt := range routes {
		res.Routes = append(res.Routes, dto.NewRoute(rt))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Catalog.Route(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteResponse{Route: dto.NewRoute(rt)})
}

// Stats counts assigned and live vehicles per route.
func (h *RouteHandler) Stats(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	byID := make(map[string]*dto.RouteStats, len(routes))
	res := dto.RouteStatsResponse{Routes: make([]dto.RouteStats, 0, len(routes))}
	for _, rt := range routes {
		res.Routes = append(res.Routes, dto.RouteStats{RouteID: rt.ID, Name: rt.Name, Number: rt.Number})
	}
	for i := range res.Routes {
		byID[res.Routes[i].RouteID] = &res.Routes[i]
	}

	for _, v := range h.Store.ListAll() {
		st, ok := byID[v.RouteID]
		if !ok {
			continue
		}
		st.TotalVehicles++
		if v.Status.IsActive() {
			st.ActiveVehicles++
		}
	}
	slices.SortFunc(res.Routes, func(a, b dto.RouteStats) int { return strings.Compare(a.RouteID, b.RouteID) })
	writeJSON(w, r, http.StatusOK, res)
}

// Put creates or replaces the route named in the path.
func (h *RouteHandler) Put(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req dto.RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.check(req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := h.Catalog.Upsert(r.Context(), req.ToDomain(id)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	rt, err := h.Catalog.Route(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteResponse{Route: dto.NewRoute(rt)})
}

func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
