package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"transit-tracking-service/internal/domain"
)

// SQL-backed implementation of the VehicleRepository port (SQLite or Postgres).
type SQLVehicleRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewSQLVehicleRepository(db *sql.DB, dialect Dialect) *SQLVehicleRepository {
	return &SQLVehicleRepository{DB: db, Dialect: dialect}
}

const vehicleColumns = `
	vehicle_id,
	registration,
	type,
	capacity,
	route_id,
	status,
	latitude,
	longitude,
	location_updated_at,
	speed,
	heading,
	incident,
	incident_description,
	incident_time,
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*domain.VehicleState, error) {
	var rec vehicleRecord
	err := row.Scan(
		&rec.VehicleID,
		&rec.Registration,
		&rec.Type,
		&rec.Capacity,
		&rec.RouteID,
		&rec.Status,
		&rec.Latitude,
		&rec.Longitude,
		&rec.LocationUpdatedAt,
		&rec.Speed,
		&rec.Heading,
		&rec.Incident,
		&rec.IncidentDescription,
		&rec.IncidentTime,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Return a single vehicle by id.
func (s *SQLVehicleRepository) GetVehicle(ctx context.Context, id string) (*domain.VehicleState, error) {
	if s.DB == nil {
		return nil, errors.New("sql vehicle repository: DB is nil")
	}

	query := s.Dialect.Rebind(`SELECT` + vehicleColumns + `
	FROM vehicles
	WHERE vehicle_id = ?;
	`)

	v, err := scanVehicle(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: %w", id, err)
	}
	return v, nil
}

// Return all vehicles stored in the database.
func (s *SQLVehicleRepository) ListVehicles(ctx context.Context) ([]*domain.VehicleState, error) {
	if s.DB == nil {
		return nil, errors.New("sql vehicle repository: DB is nil")
	}

	query := `SELECT` + vehicleColumns + `
	FROM vehicles
	ORDER BY vehicle_id;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: query vehicles table: %w", err)
	}
	defer rows.Close()

	vehicles := make([]*domain.VehicleState, 0, 64)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("list vehicles: scan row: %w", err)
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles: row iteration: %w", err)
	}

	return vehicles, nil
}

// Insert or replace the full vehicle row.
func (s *SQLVehicleRepository) UpsertVehicle(ctx context.Context, v *domain.VehicleState) error {
	if s.DB == nil {
		return errors.New("sql vehicle repository: DB is nil")
	}

	query := s.Dialect.Rebind(`
	INSERT INTO vehicles (` + vehicleColumns + `
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (vehicle_id) DO UPDATE SET
		registration = excluded.registration,
		type = excluded.type,
		capacity = excluded.capacity,
		route_id = excluded.route_id,
		status = excluded.status,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		location_updated_at = excluded.location_updated_at,
		speed = excluded.speed,
		heading = excluded.heading,
		incident = excluded.incident,
		incident_description = excluded.incident_description,
		incident_time = excluded.incident_time,
		created_at = excluded.created_at;
	`)

	rec := newVehicleRecord(v)
	if rec.Incident == "" {
		rec.Incident = string(domain.IncidentNone)
	}
	_, err := s.DB.ExecContext(ctx, query,
		rec.VehicleID,
		rec.Registration,
		rec.Type,
		rec.Capacity,
		rec.RouteID,
		rec.Status,
		rec.Latitude,
		rec.Longitude,
		rec.LocationUpdatedAt,
		rec.Speed,
		rec.Heading,
		rec.Incident,
		rec.IncidentDescription,
		rec.IncidentTime,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vehicle: vehicle_id=%s: %w", v.ID, err)
	}
	return nil
}

// Delete a vehicle row. Unknown ids report domain.ErrNotFound.
func (s *SQLVehicleRepository) DeleteVehicle(ctx context.Context, id string) error {
	if s.DB == nil {
		return errors.New("sql vehicle repository: DB is nil")
	}

	query := s.Dialect.Rebind(`DELETE FROM vehicles WHERE vehicle_id = ?;`)
	res, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}
