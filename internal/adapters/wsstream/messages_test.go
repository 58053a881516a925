package wsstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

func TestEnvelopeEventNames(t *testing.T) {
	v := domain.VehicleState{ID: "V1", RouteID: "R1", Status: domain.StatusMaintenance, Incident: domain.IncidentAccident}
	cases := map[domain.EventKind]string{
		domain.EventLocationChanged: dto.EventVehicleLocationUpdate,
		domain.EventIncidentChanged: dto.EventVehicleIncident,
		domain.EventVehicleCreated:  dto.EventVehicleAdded,
		domain.EventVehicleUpdated:  dto.EventVehicleUpdated,
		domain.EventVehicleRemoved:  dto.EventVehicleDeleted,
	}
	for kind, want := range cases {
		ev := &domain.ChangeEvent{Kind: kind, VehicleID: "V1", RouteID: "R1", Vehicle: v}
		env := Envelope(tracking.Delivery{Seq: 7, Kind: tracking.DeliveryEvent, Event: ev})
		assert.Equal(t, want, env.Event, kind)
		assert.Equal(t, uint64(7), env.Seq)
	}
}

func TestEnvelopePayloads(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	v := domain.VehicleState{
		ID:           "V1",
		RouteID:      "R1",
		Status:       domain.StatusMaintenance,
		Incident:     domain.IncidentPuncture,
		IncidentTime: at,
	}

	env := Envelope(tracking.Delivery{Kind: tracking.DeliveryEvent, Event: &domain.ChangeEvent{Kind: domain.EventIncidentChanged, VehicleID: "V1", Vehicle: v}})
	data, ok := env.Data.(dto.IncidentData)
	require.True(t, ok)
	assert.Equal(t, "puncture", data.IncidentStatus)
	require.NotNil(t, data.IncidentTime)
	assert.Equal(t, at, *data.IncidentTime)

	env = Envelope(tracking.Delivery{Kind: tracking.DeliveryResync, Dropped: 84, At: at})
	assert.Equal(t, dto.EventResync, env.Event)
	assert.Equal(t, dto.ResyncData{Dropped: 84}, env.Data)
	assert.Equal(t, at, env.Timestamp)

	env = Envelope(tracking.Delivery{Kind: tracking.DeliverySnapshot, Snapshot: []tracking.ActiveVehicle{
		{VehicleState: domain.VehicleState{ID: "V2"}, Route: &tracking.RouteRef{ID: "R1", Name: "Loop"}},
	}})
	assert.Equal(t, dto.EventActiveVehicles, env.Event)
	list, ok := env.Data.(dto.ListVehiclesResponse)
	require.True(t, ok)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Loop", list.Vehicles[0].Route.Name)
	assert.Equal(t, "none", list.Vehicles[0].IncidentStatus)

	env = Envelope(tracking.Delivery{Kind: tracking.DeliveryError, Message: "bad topic"})
	assert.Equal(t, dto.EventError, env.Event)
	assert.Equal(t, dto.ErrorData{Message: "bad topic"}, env.Data)
}

func TestCommandConversion(t *testing.T) {
	lat := 23.1
	got := Command(dto.Command{Action: tracking.ActionSubscribeToRoute, ID: "R1", Latitude: &lat})
	assert.Equal(t, tracking.ActionSubscribeToRoute, got.Action)
	assert.Equal(t, "R1", got.ID)
	assert.Same(t, &lat, got.Latitude)
}
