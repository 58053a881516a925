package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"transit-tracking-service/internal/domain"
)

// SQL-backed implementation of the RouteRepository port.
// Stops and endpoints are stored as JSON text columns.
type SQLRouteRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewSQLRouteRepository(db *sql.DB, dialect Dialect) *SQLRouteRepository {
	return &SQLRouteRepository{DB: db, Dialect: dialect}
}

const routeColumns = `
	route_id,
	name,
	number,
	color,
	start_json,
	end_json,
	stops_json,
	distance_km,
	estimated_minutes,
	is_active`

func scanRoute(row rowScanner) (*domain.RouteSummary, error) {
	var (
		rec                         routeRecord
		startJSON, endJSON, stopsJS string
	)
	err := row.Scan(
		&rec.RouteID,
		&rec.Name,
		&rec.Number,
		&rec.Color,
		&startJSON,
		&endJSON,
		&stopsJS,
		&rec.DistanceKm,
		&rec.EstimatedMinutes,
		&rec.Active,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(startJSON), &rec.Start); err != nil {
		return nil, fmt.Errorf("decode start_json: %w", err)
	}
	if err := json.Unmarshal([]byte(endJSON), &rec.End); err != nil {
		return nil, fmt.Errorf("decode end_json: %w", err)
	}
	if err := json.Unmarshal([]byte(stopsJS), &rec.Stops); err != nil {
		return nil, fmt.Errorf("decode stops_json: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *SQLRouteRepository) GetRoute(ctx context.Context, id string) (*domain.RouteSummary, error) {
	if s.DB == nil {
		return nil, errors.New("sql route repository: DB is nil")
	}

	query := s.Dialect.Rebind(`SELECT` + routeColumns + `
	FROM routes
	WHERE route_id = ?;
	`)

	r, err := scanRoute(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route: route_id=%s: %w", id, err)
	}
	return r, nil
}

func (s *SQLRouteRepository) ListRoutes(ctx context.Context) ([]*domain.RouteSummary, error) {
	if s.DB == nil {
		return nil, errors.New("sql route repository: DB is nil")
	}

	query := `SELECT` + routeColumns + `
	FROM routes
	ORDER BY route_id;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list routes: query routes table: %w", err)
	}
	defer rows.Close()

	routes := make([]*domain.RouteSummary, 0, 16)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("list routes: scan row: %w", err)
		}
		routes = append(routes, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routes: row iteration: %w", err)
	}

	return routes, nil
}

func (s *SQLRouteRepository) UpsertRoute(ctx context.Context, r *domain.RouteSummary) error {
	if s.DB == nil {
		return errors.New("sql route repository: DB is nil")
	}

	rec := newRouteRecord(r)
	if rec.Color == "" {
		rec.Color = domain.DefaultRouteColor
	}
	startJSON, err := json.Marshal(rec.Start)
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: encode start: %w", r.ID, err)
	}
	endJSON, err := json.Marshal(rec.End)
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: encode end: %w", r.ID, err)
	}
	stopsJSON, err := json.Marshal(rec.Stops)
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: encode stops: %w", r.ID, err)
	}

	query := s.Dialect.Rebind(`
	INSERT INTO routes (` + routeColumns + `
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (route_id) DO UPDATE SET
		name = excluded.name,
		number = excluded.number,
		color = excluded.color,
		start_json = excluded.start_json,
		end_json = excluded.end_json,
		stops_json = excluded.stops_json,
		distance_km = excluded.distance_km,
		estimated_minutes = excluded.estimated_minutes,
		is_active = excluded.is_active;
	`)

	_, err = s.DB.ExecContext(ctx, query,
		rec.RouteID,
		rec.Name,
		rec.Number,
		rec.Color,
		string(startJSON),
		string(endJSON),
		string(stopsJSON),
		rec.DistanceKm,
		rec.EstimatedMinutes,
		rec.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLRouteRepository) DeleteRoute(ctx context.Context, id string) error {
	if s.DB == nil {
		return errors.New("sql route repository: DB is nil")
	}

	query := s.Dialect.Rebind(`DELETE FROM routes WHERE route_id = ?;`)
	res, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete route: route_id=%s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete route: route_id=%s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SQLFleetRepository serves both ports from one database handle.
type SQLFleetRepository struct {
	*SQLVehicleRepository
	*SQLRouteRepository
}

func NewSQLFleetRepository(db *sql.DB, dialect Dialect) *SQLFleetRepository {
	return &SQLFleetRepository{
		SQLVehicleRepository: NewSQLVehicleRepository(db, dialect),
		SQLRouteRepository:   NewSQLRouteRepository(db, dialect),
	}
}
