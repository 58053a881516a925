package dto

import (
	"time"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

type Location struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type RouteRef struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
	Color  string `json:"color,omitempty"`
}

type Vehicle struct {
	ID                  string     `json:"id"`
	Registration        string     `json:"registration"`
	Type                string     `json:"type"`
	Capacity            int        `json:"capacity"`
	RouteID             string     `json:"routeId,omitempty"`
	Route               *RouteRef  `json:"route,omitempty"`
	Status              string     `json:"status"`
	CurrentLocation     Location   `json:"currentLocation"`
	Speed               float64    `json:"speed"`
	Heading             float64    `json:"heading"`
	IncidentStatus      string     `json:"incidentStatus"`
	IncidentDescription string     `json:"incidentDescription,omitempty"`
	IncidentTime        *time.Time `json:"incidentTime"`
	CreatedAt           *time.Time `json:"createdAt,omitempty"`
}

// timePtr maps the zero time to null.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func NewLocation(p domain.Position) Location {
	return Location{Latitude: p.Latitude, Longitude: p.Longitude, UpdatedAt: timePtr(p.UpdatedAt)}
}

func NewVehicle(v domain.VehicleState) Vehicle {
	incident := string(v.Incident)
	if incident == "" {
		incident = string(domain.IncidentNone)
	}
	return Vehicle{
		ID:                  v.ID,
		Registration:        v.Registration,
		Type:                string(v.Type),
		Capacity:            v.Capacity,
		RouteID:             v.RouteID,
		Status:              string(v.Status),
		CurrentLocation:     NewLocation(v.Position),
		Speed:               v.Speed,
		Heading:             v.Heading,
		IncidentStatus:      incident,
		IncidentDescription: v.IncidentDescription,
		IncidentTime:        timePtr(v.IncidentTime),
		CreatedAt:           timePtr(v.CreatedAt),
	}
}

// NewActiveVehicle includes the embedded route display data.
func NewActiveVehicle(av tracking.ActiveVehicle) Vehicle {
	out := NewVehicle(av.VehicleState)
	if av.Route != nil {
		out.Route = &RouteRef{ID: av.Route.ID, Name: av.Route.Name, Number: av.Route.Number, Color: av.Route.Color}
	}
	return out
}

func NewVehicles(vs []domain.VehicleState) []Vehicle {
	out := make([]Vehicle, 0, len(vs))
	for _, v := range vs {
		out = append(out, NewVehicle(v))
	}
	return out
}

func NewActiveVehicles(avs []tracking.ActiveVehicle) []Vehicle {
	out := make([]Vehicle, 0, len(avs))
	for _, av := range avs {
		out = append(out, NewActiveVehicle(av))
	}
	return out
}

type VehicleResponse struct {
	Vehicle Vehicle `json:"vehicle"`
}

type ListVehiclesResponse struct {
	Count    int       `json:"count"`
	Vehicles []Vehicle `json:"vehicles"`
}

// Missing speed or heading leaves the stored value unchanged.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
}

type IncidentRequest struct {
	IncidentStatus      string `json:"incidentStatus"`
	IncidentDescription string `json:"incidentDescription"`
}

type VehicleRequest struct {
	ID           string  `json:"id"`
	Registration *string `json:"registration"`
	Type         *string `json:"type"`
	Capacity     *int    `json:"capacity"`
	RouteID      *string `json:"routeId"`
	Status       *string `json:"status"`
}

type ETAResponse struct {
	VehicleID        string   `json:"vehicleId"`
	RouteID          string   `json:"routeId"`
	NextStop         Stop     `json:"nextStop"`
	DistanceToNextKm float64  `json:"distanceToNextKm"`
	RemainingKm      float64  `json:"remainingKm"`
	MinutesToNext    *float64 `json:"minutesToNext"`
	MinutesToEnd     *float64 `json:"minutesToEnd"`
	Basis            string   `json:"basis"`
}

func NewETA(e tracking.ETA) ETAResponse {
	res := ETAResponse{
		VehicleID:        e.VehicleID,
		RouteID:          e.RouteID,
		NextStop:         NewStop(e.NextStop),
		DistanceToNextKm: e.DistanceToNextKm,
		RemainingKm:      e.RemainingKm,
		Basis:            string(e.Basis),
	}
	if e.Basis != tracking.ETAUnknown {
		res.MinutesToNext = &e.MinutesToNext
		res.MinutesToEnd = &e.MinutesToEnd
	}
	return res
}
