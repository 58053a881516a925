package ports

import (
	"context"
	"transit-tracking-service/internal/domain"
)

// Port: durable keyed storage for route summaries.
type RouteRepository interface {
	GetRoute(ctx context.Context, id string) (*domain.RouteSummary, error)
	ListRoutes(ctx context.Context) ([]*domain.RouteSummary, error)
	UpsertRoute(ctx context.Context, r *domain.RouteSummary) error
	DeleteRoute(ctx context.Context, id string) error
}

// Both repositories behind one backend.
type FleetRepository interface {
	VehicleRepository
	RouteRepository
}
