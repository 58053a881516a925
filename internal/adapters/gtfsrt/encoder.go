package gtfsrt

import (
	"fmt"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-tracking-service/internal/domain"
)

const gtfsRealtimeVersion = "2.0"

// BuildFeed converts the fleet into a GTFS-Realtime FULL_DATASET message.
// Active vehicles with a known position become VehiclePosition entities;
// open incidents become Alert entities scoped to the vehicle's route.
func BuildFeed(vehicles []domain.VehicleState, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(vehicles)),
	}

	for _, v := range vehicles {
		if v.Status.IsActive() && !v.Position.Coordinates().IsZero() {
			feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
				Id:      proto.String("vp-" + v.ID),
				Vehicle: vehiclePosition(v),
			})
		}
		if v.HasIncident() {
			feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
				Id:    proto.String("alert-" + v.ID),
				Alert: incidentAlert(v),
			})
		}
	}

	return feed
}

// Encode serializes the feed as protobuf wire format.
func Encode(vehicles []domain.VehicleState, now time.Time) ([]byte, error) {
	raw, err := proto.Marshal(BuildFeed(vehicles, now))
	if err != nil {
		return nil, fmt.Errorf("encode gtfs-rt feed: %w", err)
	}
	return raw, nil
}

func vehiclePosition(v domain.VehicleState) *gtfs.VehiclePosition {
	vp := &gtfs.VehiclePosition{
		Vehicle: &gtfs.VehicleDescriptor{
			Id:           proto.String(v.ID),
			Label:        proto.String(v.ID),
			LicensePlate: proto.String(v.Registration),
		},
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(v.Position.Latitude)),
			Longitude: proto.Float32(float32(v.Position.Longitude)),
			Bearing:   proto.Float32(float32(v.Heading)),
			// GTFS-RT speed is meters per second
			Speed: proto.Float32(float32(v.Speed / 3.6)),
		},
	}
	if v.HasRoute() {
		vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(v.RouteID)}
	}
	if !v.Position.UpdatedAt.IsZero() {
		vp.Timestamp = proto.Uint64(uint64(v.Position.UpdatedAt.Unix()))
	}
	return vp
}

func incidentAlert(v domain.VehicleState) *gtfs.Alert {
	cause, effect := mapIncident(v.Incident)

	header := fmt.Sprintf("Vehicle %s: %s", v.ID, strings.ReplaceAll(string(v.Incident), "_", " "))
	alert := &gtfs.Alert{
		Cause:      cause.Enum(),
		Effect:     effect.Enum(),
		HeaderText: text(header),
	}
	if v.IncidentDescription != "" {
		alert.DescriptionText = text(v.IncidentDescription)
	}
	if !v.IncidentTime.IsZero() {
		alert.ActivePeriod = []*gtfs.TimeRange{{Start: proto.Uint64(uint64(v.IncidentTime.Unix()))}}
	}
	if v.HasRoute() {
		alert.InformedEntity = []*gtfs.EntitySelector{{RouteId: proto.String(v.RouteID)}}
	}
	return alert
}

func text(s string) *gtfs.TranslatedString {
	return &gtfs.TranslatedString{
		Translation: []*gtfs.TranslatedString_Translation{{Text: proto.String(s), Language: proto.String("en")}},
	}
}

func mapIncident(i domain.Incident) (gtfs.Alert_Cause, gtfs.Alert_Effect) {
	switch i {
	case domain.IncidentAccident:
		return gtfs.Alert_ACCIDENT, gtfs.Alert_SIGNIFICANT_DELAYS
	case domain.IncidentMedicalEmergency:
		return gtfs.Alert_MEDICAL_EMERGENCY, gtfs.Alert_SIGNIFICANT_DELAYS
	case domain.IncidentPuncture, domain.IncidentBreakdown:
		return gtfs.Alert_TECHNICAL_PROBLEM, gtfs.Alert_REDUCED_SERVICE
	case domain.IncidentTrafficHeavy:
		return gtfs.Alert_OTHER_CAUSE, gtfs.Alert_SIGNIFICANT_DELAYS
	case domain.IncidentDiversion:
		return gtfs.Alert_CONSTRUCTION, gtfs.Alert_DETOUR
	case domain.IncidentWeatherBad:
		return gtfs.Alert_WEATHER, gtfs.Alert_SIGNIFICANT_DELAYS
	default:
		return gtfs.Alert_UNKNOWN_CAUSE, gtfs.Alert_UNKNOWN_EFFECT
	}
}
