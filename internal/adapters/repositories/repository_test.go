package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/platform/db"
	"transit-tracking-service/internal/ports"
)

func backends(t *testing.T) map[string]ports.FleetRepository {
	t.Helper()

	sqlDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, InitSchema(context.Background(), sqlDB))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ports.FleetRepository{
		"memory": NewMemoryRepository(),
		"sqlite": NewSQLFleetRepository(sqlDB, DialectSQLite),
		"redis":  NewRedisRepository(client),
	}
}

func sampleVehicle() *domain.VehicleState {
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	return &domain.VehicleState{
		ID:           "V1",
		Registration: "GJ01AB0001",
		Type:         domain.VehicleBus,
		Capacity:     50,
		RouteID:      "R1",
		Status:       domain.StatusMaintenance,
		Position: domain.Position{
			Latitude:  23.0,
			Longitude: 72.5,
			UpdatedAt: at,
		},
		Speed:               31.5,
		Heading:             270,
		Incident:            domain.IncidentAccident,
		IncidentDescription: "rear collision",
		IncidentTime:        at.Add(time.Minute),
		CreatedAt:           at.Add(-time.Hour),
	}
}

func sampleRoute() *domain.RouteSummary {
	return &domain.RouteSummary{
		ID:     "R1",
		Name:   "Central - Airport",
		Number: "101",
		Color:  "#10B981",
		Start:  domain.RouteStop{Name: "Central", Latitude: 23.02, Longitude: 72.57},
		End:    domain.RouteStop{Name: "Airport", Latitude: 23.07, Longitude: 72.62},
		Stops: []domain.RouteStop{
			{Name: "Central", Latitude: 23.02, Longitude: 72.57, Order: 1},
			{Name: "Airport", Latitude: 23.07, Longitude: 72.62, Order: 2},
		},
		DistanceKm:       9.5,
		EstimatedMinutes: 25,
		Active:           true,
	}
}

func TestVehicleRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleVehicle()
			require.NoError(t, repo.UpsertVehicle(ctx, want))

			got, err := repo.GetVehicle(ctx, "V1")
			require.NoError(t, err)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Status, got.Status)
			assert.Equal(t, want.Incident, got.Incident)
			assert.Equal(t, want.Position.Latitude, got.Position.Latitude)
			assert.Equal(t, want.Speed, got.Speed)
			assert.True(t, want.Position.UpdatedAt.Equal(got.Position.UpdatedAt))
			assert.True(t, want.IncidentTime.Equal(got.IncidentTime))

			want.Status = domain.StatusActive
			want.Incident = domain.IncidentNone
			want.IncidentTime = time.Time{}
			require.NoError(t, repo.UpsertVehicle(ctx, want))

			got, err = repo.GetVehicle(ctx, "V1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusActive, got.Status)
			assert.True(t, got.IncidentTime.IsZero())

			all, err := repo.ListVehicles(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)

			require.NoError(t, repo.DeleteVehicle(ctx, "V1"))
			_, err = repo.GetVehicle(ctx, "V1")
			assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
			assert.ErrorIs(t, repo.DeleteVehicle(ctx, "V1"), domain.ErrNotFound)
		})
	}
}

func TestRouteRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleRoute()
			require.NoError(t, repo.UpsertRoute(ctx, want))

			got, err := repo.GetRoute(ctx, "R1")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			routes, err := repo.ListRoutes(ctx)
			require.NoError(t, err)
			require.Len(t, routes, 1)

			require.NoError(t, repo.DeleteRoute(ctx, "R1"))
			_, err = repo.GetRoute(ctx, "R1")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestRouteDefaultColor(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	r := sampleRoute()
	r.Color = ""
	require.NoError(t, repo.UpsertRoute(ctx, r))

	got, err := repo.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRouteColor, got.Color)
}

func TestSeedFromJSON(t *testing.T) {
	ctx := context.Background()
	seed := `{
	  "routes": [{"route_id": "R1", "name": "Loop", "number": "1",
	    "start": {"name": "A", "latitude": 23.02, "longitude": 72.57},
	    "end": {"name": "B", "latitude": 23.07, "longitude": 72.62},
	    "stops": [], "distance_km": 5, "estimated_minutes": 10, "active": true}],
	  "vehicles": [
	    {"vehicle_id": "V1", "type": "bus", "capacity": 40, "route_id": "R1", "status": "active"},
	    {"vehicle_id": "V2", "type": "taxi", "capacity": 4, "status": "active", "latitude": 23.0, "longitude": 72.5}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	repo := NewMemoryRepository()
	require.NoError(t, SeedFromJSON(ctx, repo, path))

	v1, err := repo.GetVehicle(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, 23.02, v1.Position.Latitude, "placed at route start")
	assert.Equal(t, domain.IncidentNone, v1.Incident)
	assert.False(t, v1.CreatedAt.IsZero())

	v2, err := repo.GetVehicle(ctx, "V2")
	require.NoError(t, err)
	assert.Equal(t, 23.0, v2.Position.Latitude)

	r, err := repo.GetRoute(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRouteColor, r.Color)
}

func TestSeedRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"vehicles":[{"type":"bus"}]}`), 0o600))

	err := SeedFromJSON(context.Background(), NewMemoryRepository(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vehicle_id cannot be empty")
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", DialectPostgres.Rebind(q))
}
