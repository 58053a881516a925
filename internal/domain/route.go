package domain

import (
	"cmp"
	"slices"
)

// DefaultRouteColor is used when a route is stored without a display color.
const DefaultRouteColor = "#3B82F6"

// Represents a named point on a route (start, end or intermediate stop).
type RouteStop struct {
	Name      string
	Latitude  float64
	Longitude float64
	Order     int
}

func (s RouteStop) Coordinates() Coordinates {
	return Coordinates{Lon: s.Longitude, Lat: s.Latitude}
}

// RouteSummary is the read-only view of a route the tracking core needs:
// display attributes, the ordered stop sequence and the planned duration.
type RouteSummary struct {
	ID               string
	Name             string
	Number           string
	Color            string
	Start            RouteStop
	End              RouteStop
	Stops            []RouteStop
	DistanceKm       float64
	EstimatedMinutes int
	Active           bool
}

// Path returns the stop sequence ordered by Order, used for distance estimates.
// Routes without explicit stops fall back to start and end points.
func (r RouteSummary) Path() []RouteStop {
	if len(r.Stops) > 0 {
		stops := slices.Clone(r.Stops)
		slices.SortStableFunc(stops, func(a, b RouteStop) int { return cmp.Compare(a.Order, b.Order) })
		return stops
	}
	if r.Start == (RouteStop{}) && r.End == (RouteStop{}) {
		return nil
	}
	return []RouteStop{r.Start, r.End}
}
