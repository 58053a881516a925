package repositories

import (
	"time"
	"transit-tracking-service/internal/domain"
)

// Serialized vehicle shape shared by the seed file and the Redis backend.
// Timestamps are unix milliseconds; zero means unset.
type vehicleRecord struct {
	VehicleID           string  `json:"vehicle_id"`
	Registration        string  `json:"registration"`
	Type                string  `json:"type"`
	Capacity            int     `json:"capacity"`
	RouteID             string  `json:"route_id,omitempty"`
	Status              string  `json:"status"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	LocationUpdatedAt   int64   `json:"location_updated_at,omitempty"`
	Speed               float64 `json:"speed"`
	Heading             float64 `json:"heading"`
	Incident            string  `json:"incident,omitempty"`
	IncidentDescription string  `json:"incident_description,omitempty"`
	IncidentTime        int64   `json:"incident_time,omitempty"`
	CreatedAt           int64   `json:"created_at,omitempty"`
}

type stopRecord struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Order     int     `json:"order,omitempty"`
}

type routeRecord struct {
	RouteID          string       `json:"route_id"`
	Name             string       `json:"name"`
	Number           string       `json:"number"`
	Color            string       `json:"color,omitempty"`
	Start            stopRecord   `json:"start"`
	End              stopRecord   `json:"end"`
	Stops            []stopRecord `json:"stops"`
	DistanceKm       float64      `json:"distance_km"`
	EstimatedMinutes int          `json:"estimated_minutes"`
	Active           bool         `json:"active"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func newVehicleRecord(v *domain.VehicleState) vehicleRecord {
	return vehicleRecord{
		VehicleID:           v.ID,
		Registration:        v.Registration,
		Type:                string(v.Type),
		Capacity:            v.Capacity,
		RouteID:             v.RouteID,
		Status:              string(v.Status),
		Latitude:            v.Position.Latitude,
		Longitude:           v.Position.Longitude,
		LocationUpdatedAt:   toMillis(v.Position.UpdatedAt),
		Speed:               v.Speed,
		Heading:             v.Heading,
		Incident:            string(v.Incident),
		IncidentDescription: v.IncidentDescription,
		IncidentTime:        toMillis(v.IncidentTime),
		CreatedAt:           toMillis(v.CreatedAt),
	}
}

func (r vehicleRecord) toDomain() *domain.VehicleState {
	incident := domain.Incident(r.Incident)
	if incident == "" {
		incident = domain.IncidentNone
	}
	status := domain.Status(r.Status)
	if status == "" {
		status = domain.StatusInactive
	}
	return &domain.VehicleState{
		ID:           r.VehicleID,
		Registration: r.Registration,
		Type:         domain.VehicleType(r.Type),
		Capacity:     r.Capacity,
		RouteID:      r.RouteID,
		Status:       status,
		Position: domain.Position{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			UpdatedAt: fromMillis(r.LocationUpdatedAt),
		},
		Speed:               r.Speed,
		Heading:             r.Heading,
		Incident:            incident,
		IncidentDescription: r.IncidentDescription,
		IncidentTime:        fromMillis(r.IncidentTime),
		CreatedAt:           fromMillis(r.CreatedAt),
	}
}

func newStopRecord(s domain.RouteStop) stopRecord {
	return stopRecord{Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude, Order: s.Order}
}

func (s stopRecord) toDomain() domain.RouteStop {
	return domain.RouteStop{Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude, Order: s.Order}
}

func newStopRecords(stops []domain.RouteStop) []stopRecord {
	out := make([]stopRecord, 0, len(stops))
	for _, s := range stops {
		out = append(out, newStopRecord(s))
	}
	return out
}

func stopsToDomain(stops []stopRecord) []domain.RouteStop {
	out := make([]domain.RouteStop, 0, len(stops))
	for _, s := range stops {
		out = append(out, s.toDomain())
	}
	return out
}

func newRouteRecord(r *domain.RouteSummary) routeRecord {
	return routeRecord{
		RouteID:          r.ID,
		Name:             r.Name,
		Number:           r.Number,
		Color:            r.Color,
		Start:            newStopRecord(r.Start),
		End:              newStopRecord(r.End),
		Stops:            newStopRecords(r.Stops),
		DistanceKm:       r.DistanceKm,
		EstimatedMinutes: r.EstimatedMinutes,
		Active:           r.Active,
	}
}

func (r routeRecord) toDomain() *domain.RouteSummary {
	color := r.Color
	if color == "" {
		color = domain.DefaultRouteColor
	}
	return &domain.RouteSummary{
		ID:               r.RouteID,
		Name:             r.Name,
		Number:           r.Number,
		Color:            color,
		Start:            r.Start.toDomain(),
		End:              r.End.toDomain(),
		Stops:            stopsToDomain(r.Stops),
		DistanceKm:       r.DistanceKm,
		EstimatedMinutes: r.EstimatedMinutes,
		Active:           r.Active,
	}
}
