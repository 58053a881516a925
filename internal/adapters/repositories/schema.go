package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/ports"
)

// Dialect selects the placeholder style of the SQL backend.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Rebind rewrites '?' placeholders to '$n' for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Initialize the vehicles and routes tables. The DDL is valid for both
// SQLite and Postgres.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		number TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '#3B82F6',
		start_json TEXT NOT NULL DEFAULT '{}',
		end_json TEXT NOT NULL DEFAULT '{}',
		stops_json TEXT NOT NULL DEFAULT '[]',
		distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		estimated_minutes INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);
	`

	createVehiclesQuery := `
	CREATE TABLE IF NOT EXISTS vehicles (
		vehicle_id TEXT PRIMARY KEY,
		registration TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		route_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'inactive',
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		location_updated_at BIGINT NOT NULL DEFAULT 0,
		speed DOUBLE PRECISION NOT NULL DEFAULT 0,
		heading DOUBLE PRECISION NOT NULL DEFAULT 0,
		incident TEXT NOT NULL DEFAULT 'none',
		incident_description TEXT NOT NULL DEFAULT '',
		incident_time BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL DEFAULT 0
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_vehicles_route_id
	ON vehicles(route_id);
	`

	statements := []string{
		createRoutesQuery,
		createVehiclesQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type fleetSeed struct {
	Routes   []routeRecord   `json:"routes"`
	Vehicles []vehicleRecord `json:"vehicles"`
}

// Populate any fleet backend with routes and vehicles from a JSON file.
// Vehicles assigned to a route without a position start at the route start point.
func SeedFromJSON(ctx context.Context, repo ports.FleetRepository, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed fleet: read %q: %w", jsonPath, err)
	}

	var data fleetSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed fleet: parse json: %w", err)
	}

	routes := make(map[string]domain.RouteSummary, len(data.Routes))
	for i, item := range data.Routes {
		if strings.TrimSpace(item.RouteID) == "" {
			return fmt.Errorf("seed fleet: route at index %d: route_id cannot be empty", i+1)
		}
		r := item.toDomain()
		if err := repo.UpsertRoute(ctx, r); err != nil {
			return fmt.Errorf("seed fleet: upsert route_id=%s: %w", r.ID, err)
		}
		routes[r.ID] = *r
	}

	now := time.Now().UTC()
	for i, item := range data.Vehicles {
		if strings.TrimSpace(item.VehicleID) == "" {
			return fmt.Errorf("seed fleet: vehicle at index %d: vehicle_id cannot be empty", i+1)
		}
		v := item.toDomain()
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		if !v.Position.Coordinates().IsZero() && v.Position.UpdatedAt.IsZero() {
			v.Position.UpdatedAt = now
		}
		if r, ok := routes[v.RouteID]; ok {
			v.PlaceAtRouteStart(r, now)
		}
		if err := repo.UpsertVehicle(ctx, v); err != nil {
			return fmt.Errorf("seed fleet: upsert vehicle_id=%s: %w", v.ID, err)
		}
	}

	return nil
}
