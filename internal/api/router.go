package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transit-tracking-service/internal/adapters/wsstream"
	"transit-tracking-service/internal/api/handlers"
	"transit-tracking-service/internal/ports"
	"transit-tracking-service/internal/tracking"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Store    *tracking.Store
	Catalog  *tracking.RouteCatalog
	Registry *tracking.Registry
	Gateway  *tracking.Gateway
	Manager  *tracking.Manager
	Auth     ports.Authenticator

	Stream wsstream.Options
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	health := &handlers.HealthHandler{Store: d.Store, Manager: d.Manager}
	vehicles := &handlers.VehicleHandler{Store: d.Store, Catalog: d.Catalog, Gateway: d.Gateway}
	routes := handlers.NewRouteHandler(d.Catalog, d.Store)
	stats := &handlers.StatsHandler{Store: d.Store, Catalog: d.Catalog, Registry: d.Registry, Manager: d.Manager}
	feed := &handlers.FeedHandler{Store: d.Store}
	stream := &handlers.StreamHandler{
		Manager: d.Manager,
		Auth:    d.Auth,
		Options: d.Stream,
		Logger:  logger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux.HandleFunc("/health", health.Health)

	mux.HandleFunc("GET /api/vehicles", vehicles.List)
	mux.HandleFunc("POST /api/vehicles", vehicles.Create)
	mux.HandleFunc("GET /api/vehicles/active", vehicles.Active)
	mux.HandleFunc("GET /api/vehicles/{id}", vehicles.Get)
	mux.HandleFunc("PUT /api/vehicles/{id}", vehicles.Update)
	mux.HandleFunc("DELETE /api/vehicles/{id}", vehicles.Delete)
	mux.HandleFunc("GET /api/vehicles/{id}/eta", vehicles.ETA)
	mux.HandleFunc("PUT /api/vehicles/{id}/location", vehicles.Location)
	mux.HandleFunc("PUT /api/vehicles/{id}/incident", vehicles.Incident)

	mux.HandleFunc("GET /api/routes", routes.List)
	mux.HandleFunc("GET /api/routes/stats", routes.Stats)
	mux.HandleFunc("GET /api/routes/{id}", routes.Get)
	mux.HandleFunc("PUT /api/routes/{id}", routes.Put)
	mux.HandleFunc("DELETE /api/routes/{id}", routes.Delete)

	mux.HandleFunc("GET /api/stats", stats.Stats)
	mux.HandleFunc("GET /api/feeds/vehicle-positions.pb", feed.VehiclePositions)
	mux.Handle("GET /ws", stream)

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return requestIDMiddleware(loggingMiddleware(logger, authMiddleware(d.Auth, mux)))
}
