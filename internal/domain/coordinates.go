package domain

import "math"

const earthRadiusKm = 6371.0

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// DistanceKm returns the great-circle (haversine) distance to other.
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Lon - c.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// IsZero reports whether the coordinates were never set.
func (c Coordinates) IsZero() bool { return c.Lat == 0 && c.Lon == 0 }
