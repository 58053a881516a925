package domain

import "time"

// EventKind discriminates the ChangeEvent union.
type EventKind string

const (
	EventLocationChanged EventKind = "location_changed"
	EventIncidentChanged EventKind = "incident_changed"
	EventVehicleCreated  EventKind = "vehicle_created"
	EventVehicleUpdated  EventKind = "vehicle_updated"
	EventVehicleRemoved  EventKind = "vehicle_removed"
)

// ChangeEvent describes one state transition applied to one vehicle.
// Vehicle holds the state after the transition (the last known state for
// EventVehicleRemoved). PreviousRouteID is set when an admin edit moved the
// vehicle to another route so that viewers of the old route learn about it.
type ChangeEvent struct {
	Kind            EventKind
	VehicleID       string
	RouteID         string
	PreviousRouteID string
	Vehicle         VehicleState
	OccurredAt      time.Time
}

// Topics returns every topic the event matches, without duplicates. Every
// event reaches all-active regardless of vehicle status, so vehicles in
// maintenance that keep driving (diversion, heavy traffic) stay on fleet maps.
func (e ChangeEvent) Topics() []Topic {
	topics := make([]Topic, 0, 4)
	topics = append(topics, VehicleTopic(e.VehicleID))
	if e.RouteID != "" {
		topics = append(topics, RouteTopic(e.RouteID))
	}
	if e.PreviousRouteID != "" && e.PreviousRouteID != e.RouteID {
		topics = append(topics, RouteTopic(e.PreviousRouteID))
	}
	return append(topics, TopicAllActive)
}
