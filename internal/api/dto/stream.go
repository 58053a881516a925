package dto

import (
	"time"

	"transit-tracking-service/internal/domain"
)

// Outbound stream event names.
const (
	EventVehicleLocationUpdate = "vehicleLocationUpdate"
	EventVehicleIncident       = "vehicleIncident"
	EventVehicleAdded          = "vehicleAdded"
	EventVehicleUpdated        = "vehicleUpdated"
	EventVehicleDeleted        = "vehicleDeleted"
	EventActiveVehicles        = "activeVehicles"
	EventResync                = "resync"
	EventError                 = "error"
)

// Envelope wraps every outbound stream message. Seq increases per
// connection; a gap means messages were dropped.
type Envelope struct {
	Event     string    `json:"event"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type LocationUpdateData struct {
	VehicleID string   `json:"vehicleId"`
	RouteID   string   `json:"routeId,omitempty"`
	Location  Location `json:"location"`
	Speed     float64  `json:"speed"`
	Heading   float64  `json:"heading"`
	Status    string   `json:"status"`
}

func NewLocationUpdateData(v domain.VehicleState) LocationUpdateData {
	return LocationUpdateData{
		VehicleID: v.ID,
		RouteID:   v.RouteID,
		Location:  NewLocation(v.Position),
		Speed:     v.Speed,
		Heading:   v.Heading,
		Status:    string(v.Status),
	}
}

type IncidentData struct {
	VehicleID           string     `json:"vehicleId"`
	IncidentStatus      string     `json:"incidentStatus"`
	IncidentDescription string     `json:"incidentDescription"`
	IncidentTime        *time.Time `json:"incidentTime"`
	Status              string     `json:"status"`
}

func NewIncidentData(v domain.VehicleState) IncidentData {
	return IncidentData{
		VehicleID:           v.ID,
		IncidentStatus:      string(v.Incident),
		IncidentDescription: v.IncidentDescription,
		IncidentTime:        timePtr(v.IncidentTime),
		Status:              string(v.Status),
	}
}

type VehicleDeletedData struct {
	VehicleID string `json:"vehicleId"`
	RouteID   string `json:"routeId,omitempty"`
}

type ResyncData struct {
	Dropped uint64 `json:"dropped"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// Command is an inbound stream control message.
type Command struct {
	Action    string   `json:"action"`
	ID        string   `json:"id,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}
