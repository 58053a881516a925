package ports

import (
	"context"
	"transit-tracking-service/internal/domain"
)

// Port: durable keyed storage for vehicle state.
// Implementations return an error wrapping domain.ErrNotFound for unknown ids.
type VehicleRepository interface {
	GetVehicle(ctx context.Context, id string) (*domain.VehicleState, error)
	ListVehicles(ctx context.Context) ([]*domain.VehicleState, error)
	// Insert or replace the full vehicle record.
	UpsertVehicle(ctx context.Context, v *domain.VehicleState) error
	DeleteVehicle(ctx context.Context, id string) error
}
