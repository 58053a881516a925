package domain

import (
	"slices"
	"time"
)

type VehicleType string

const (
	VehicleBus     VehicleType = "bus"
	VehicleMinibus VehicleType = "minibus"
	VehicleMetro   VehicleType = "metro"
	VehicleTram    VehicleType = "tram"
	VehicleCar     VehicleType = "car"
	VehicleTaxi    VehicleType = "taxi"
	VehicleVan     VehicleType = "van"
)

// Lifecycle status of a vehicle in the fleet.
type Status string

const (
	StatusInactive    Status = "inactive"
	StatusActive      Status = "active"
	StatusEnRoute     Status = "en-route"
	StatusMaintenance Status = "maintenance"
)

// IsActive reports whether the status counts towards the live fleet view.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusEnRoute
}

// Operational disruption reported by a driver or an admin.
type Incident string

const (
	IncidentNone             Incident = "none"
	IncidentAccident         Incident = "accident"
	IncidentMedicalEmergency Incident = "medical_emergency"
	IncidentPuncture         Incident = "puncture"
	IncidentBreakdown        Incident = "breakdown"
	IncidentTrafficHeavy     Incident = "traffic_heavy"
	IncidentDiversion        Incident = "diversion"
	IncidentWeatherBad       Incident = "weather_bad"
	IncidentOther            Incident = "other"
)

var incidents = []Incident{
	IncidentNone,
	IncidentAccident,
	IncidentMedicalEmergency,
	IncidentPuncture,
	IncidentBreakdown,
	IncidentTrafficHeavy,
	IncidentDiversion,
	IncidentWeatherBad,
	IncidentOther,
}

// Incidents returns every valid incident value, IncidentNone first.
func Incidents() []Incident { return slices.Clone(incidents) }

// Position is the last reported location of a vehicle.
// UpdatedAt is stamped by the server at ingest time.
type Position struct {
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

func (p Position) Coordinates() Coordinates {
	return Coordinates{Lon: p.Longitude, Lat: p.Latitude}
}

// VehicleState is the authoritative current state of a single vehicle.
//
// It is a plain value: copies never share memory with the original, so a copy
// handed to a reader can not observe later mutations.
type VehicleState struct {
	ID                  string
	Registration        string
	Type                VehicleType
	Capacity            int
	RouteID             string
	Status              Status
	Position            Position
	Speed               float64
	Heading             float64
	Incident            Incident
	IncidentDescription string
	IncidentTime        time.Time
	CreatedAt           time.Time
}

// HasRoute reports whether the vehicle is assigned to a route.
func (v VehicleState) HasRoute() bool { return v.RouteID != "" }

// HasIncident reports whether an incident other than none is open.
func (v VehicleState) HasIncident() bool {
	return v.Incident != "" && v.Incident != IncidentNone
}

// PlaceAtRouteStart moves a vehicle that has never reported a position to the
// start point of its route. It reports whether the position changed.
func (v *VehicleState) PlaceAtRouteStart(r RouteSummary, at time.Time) bool {
	if !v.Position.Coordinates().IsZero() {
		return false
	}
	start := r.Start
	if start == (RouteStop{}) {
		path := r.Path()
		if len(path) == 0 {
			return false
		}
		start = path[0]
	}
	v.Position = Position{Latitude: start.Latitude, Longitude: start.Longitude, UpdatedAt: at}
	return true
}
