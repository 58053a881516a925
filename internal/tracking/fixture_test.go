package tracking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transit-tracking-service/internal/adapters/repositories"
	"transit-tracking-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	repo       *repositories.MemoryRepository
	catalog    *RouteCatalog
	store      *Store
	registry   *Registry
	dispatcher *Dispatcher
	gateway    *Gateway
	manager    *Manager
}

func newFixture(t *testing.T, vehicles ...domain.VehicleState) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	repo := repositories.NewMemoryRepository()
	require.NoError(t, repo.UpsertRoute(ctx, &domain.RouteSummary{
		ID:     "R1",
		Name:   "Central - Airport",
		Number: "101",
		Color:  "#10B981",
		Start:  domain.RouteStop{Name: "Central", Latitude: 23.0225, Longitude: 72.5714},
		End:    domain.RouteStop{Name: "Airport", Latitude: 23.0734, Longitude: 72.6266},
		Stops: []domain.RouteStop{
			{Name: "Central", Latitude: 23.0225, Longitude: 72.5714, Order: 1},
			{Name: "Midway", Latitude: 23.0450, Longitude: 72.5900, Order: 2},
			{Name: "Airport", Latitude: 23.0734, Longitude: 72.6266, Order: 3},
		},
		DistanceKm:       9,
		EstimatedMinutes: 30,
		Active:           true,
	}))
	for i := range vehicles {
		require.NoError(t, repo.UpsertVehicle(ctx, &vehicles[i]))
	}

	catalog := NewRouteCatalog(repo, logger)
	store := NewStore(repo, catalog, logger)
	_, err := store.Load(ctx)
	require.NoError(t, err)

	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, logger, nil)
	gateway := NewGateway(store, dispatcher, logger, nil)
	manager := NewManager(store, catalog, registry, dispatcher, gateway,
		ManagerConfig{OutboxSize: 64, WriteTimeout: time.Second}, logger, nil)

	return &fixture{
		repo:       repo,
		catalog:    catalog,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		gateway:    gateway,
		manager:    manager,
	}
}

func vehicle(id string, status domain.Status, routeID string) domain.VehicleState {
	return domain.VehicleState{
		ID:           id,
		Registration: "REG-" + id,
		Type:         domain.VehicleBus,
		Capacity:     50,
		RouteID:      routeID,
		Status:       status,
		Position:     domain.Position{Latitude: 23.0, Longitude: 72.5},
		Incident:     domain.IncidentNone,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func ptr[T any](v T) *T { return &v }

// attach registers a consumer with its own outbox, bypassing the lifecycle.
func (f *fixture) attach(connID string, capacity int, topics ...domain.Topic) *Outbox {
	ob := NewOutbox(capacity)
	f.registry.Register(connID)
	for _, topic := range topics {
		f.registry.Subscribe(connID, topic)
	}
	f.dispatcher.Attach(connID, ob)
	return ob
}

func events(ds []Delivery) []*domain.ChangeEvent {
	out := make([]*domain.ChangeEvent, 0, len(ds))
	for _, d := range ds {
		if d.Kind == DeliveryEvent {
			out = append(out, d.Event)
		}
	}
	return out
}
