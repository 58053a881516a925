package wsstream

import (
	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

// Envelope converts a queued delivery into its wire form.
func Envelope(d tracking.Delivery) dto.Envelope {
	env := dto.Envelope{Seq: d.Seq, Timestamp: d.At}

	switch d.Kind {
	case tracking.DeliveryEvent:
		env.Event, env.Data = eventPayload(d.Event)
	case tracking.DeliverySnapshot:
		vehicles := dto.NewActiveVehicles(d.Snapshot)
		env.Event = dto.EventActiveVehicles
		env.Data = dto.ListVehiclesResponse{Count: len(vehicles), Vehicles: vehicles}
	case tracking.DeliveryResync:
		env.Event = dto.EventResync
		env.Data = dto.ResyncData{Dropped: d.Dropped}
	default:
		env.Event = dto.EventError
		env.Data = dto.ErrorData{Message: d.Message}
	}
	return env
}

func eventPayload(ev *domain.ChangeEvent) (string, any) {
	if ev == nil {
		return dto.EventError, dto.ErrorData{Message: "empty event"}
	}
	switch ev.Kind {
	case domain.EventLocationChanged:
		return dto.EventVehicleLocationUpdate, dto.NewLocationUpdateData(ev.Vehicle)
	case domain.EventIncidentChanged:
		return dto.EventVehicleIncident, dto.NewIncidentData(ev.Vehicle)
	case domain.EventVehicleCreated:
		return dto.EventVehicleAdded, dto.NewVehicle(ev.Vehicle)
	case domain.EventVehicleUpdated:
		return dto.EventVehicleUpdated, dto.NewVehicle(ev.Vehicle)
	case domain.EventVehicleRemoved:
		return dto.EventVehicleDeleted, dto.VehicleDeletedData{VehicleID: ev.VehicleID, RouteID: ev.RouteID}
	default:
		return dto.EventError, dto.ErrorData{Message: "unknown event kind " + string(ev.Kind)}
	}
}

// Command converts an inbound control message.
func Command(c dto.Command) tracking.Command {
	return tracking.Command{
		Action:    c.Action,
		ID:        c.ID,
		Topic:     c.Topic,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Speed:     c.Speed,
		Heading:   c.Heading,
	}
}
