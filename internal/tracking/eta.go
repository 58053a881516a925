package tracking

import (
	"fmt"

	"transit-tracking-service/internal/domain"
)

type ETABasis string

const (
	ETABySpeed    ETABasis = "speed"
	ETABySchedule ETABasis = "schedule"
	ETAUnknown    ETABasis = "unknown"
)

// ETA is a naive linear arrival estimate. Distances are great-circle
// distances along the stop sequence; no traffic or road network is considered.
type ETA struct {
	VehicleID        string
	RouteID          string
	NextStop         domain.RouteStop
	DistanceToNextKm float64
	RemainingKm      float64
	MinutesToNext    float64
	MinutesToEnd     float64
	Basis            ETABasis
}

// EstimateETA treats the stop nearest to the vehicle as the next stop. With a
// positive speed (km/h) the remaining distance is divided by it; otherwise the
// route's planned duration is prorated over the remaining distance.
func EstimateETA(v domain.VehicleState, r domain.RouteSummary) (ETA, error) {
	path := r.Path()
	if len(path) == 0 {
		return ETA{}, fmt.Errorf("eta: route_id=%s has no stops: %w", r.ID, domain.ErrNotFound)
	}

	pos := v.Position.Coordinates()
	next := 0
	best := pos.DistanceKm(path[0].Coordinates())
	for i := 1; i < len(path); i++ {
		if d := pos.DistanceKm(path[i].Coordinates()); d < best {
			best, next = d, i
		}
	}

	remaining := best
	for i := next; i < len(path)-1; i++ {
		remaining += path[i].Coordinates().DistanceKm(path[i+1].Coordinates())
	}

	eta := ETA{
		VehicleID:        v.ID,
		RouteID:          r.ID,
		NextStop:         path[next],
		DistanceToNextKm: best,
		RemainingKm:      remaining,
		Basis:            ETAUnknown,
	}

	switch {
	case v.Speed > 0:
		eta.Basis = ETABySpeed
		eta.MinutesToNext = best / v.Speed * 60
		eta.MinutesToEnd = remaining / v.Speed * 60
	case r.EstimatedMinutes > 0:
		total := r.DistanceKm
		if total <= 0 {
			for i := 0; i < len(path)-1; i++ {
				total += path[i].Coordinates().DistanceKm(path[i+1].Coordinates())
			}
		}
		if total > 0 {
			perKm := float64(r.EstimatedMinutes) / total
			eta.Basis = ETABySchedule
			eta.MinutesToNext = best * perKm
			eta.MinutesToEnd = remaining * perKm
		}
	}

	return eta, nil
}
