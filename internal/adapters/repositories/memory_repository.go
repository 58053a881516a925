package repositories

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"transit-tracking-service/internal/domain"
)

// In-memory FleetRepository for tests and STORE_DRIVER=memory.
// Values are copied on the way in and out.
type MemoryRepository struct {
	mu       sync.RWMutex
	vehicles map[string]domain.VehicleState
	routes   map[string]domain.RouteSummary

	// FailUpserts makes UpsertVehicle return this error when set.
	FailUpserts error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		vehicles: make(map[string]domain.VehicleState),
		routes:   make(map[string]domain.RouteSummary),
	}
}

func (m *MemoryRepository) GetVehicle(_ context.Context, id string) (*domain.VehicleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	return &v, nil
}

func (m *MemoryRepository) ListVehicles(_ context.Context) ([]*domain.VehicleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.VehicleState, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		v := v
		out = append(out, &v)
	}
	slices.SortFunc(out, func(a, b *domain.VehicleState) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryRepository) UpsertVehicle(_ context.Context, v *domain.VehicleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpserts != nil {
		return fmt.Errorf("upsert vehicle: vehicle_id=%s: %w", v.ID, m.FailUpserts)
	}
	m.vehicles[v.ID] = *v
	return nil
}

func (m *MemoryRepository) DeleteVehicle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.vehicles[id]; !ok {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	delete(m.vehicles, id)
	return nil
}

func (m *MemoryRepository) GetRoute(_ context.Context, id string) (*domain.RouteSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.routes[id]
	if !ok {
		return nil, fmt.Errorf("get route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	r.Stops = slices.Clone(r.Stops)
	return &r, nil
}

func (m *MemoryRepository) ListRoutes(_ context.Context) ([]*domain.RouteSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.RouteSummary, 0, len(m.routes))
	for _, r := range m.routes {
		r := r
		r.Stops = slices.Clone(r.Stops)
		out = append(out, &r)
	}
	slices.SortFunc(out, func(a, b *domain.RouteSummary) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryRepository) UpsertRoute(_ context.Context, r *domain.RouteSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.Stops = slices.Clone(r.Stops)
	if cp.Color == "" {
		cp.Color = domain.DefaultRouteColor
	}
	m.routes[r.ID] = cp
	return nil
}

func (m *MemoryRepository) DeleteRoute(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.routes[id]; !ok {
		return fmt.Errorf("delete route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	delete(m.routes, id)
	return nil
}
