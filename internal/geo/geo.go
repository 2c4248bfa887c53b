// Package geo provides coordinate helpers shared by the alert managers
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DefaultPoint is used whenever no location has been reported (Seoul City Hall)
var DefaultPoint = Point{Lat: 37.5665, Lon: 126.9780}

// Valid reports whether p is inside the WGS84 range and not NaN
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// HaversineKm calculates the great-circle distance in kilometres between two lat/lon points
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceKm is HaversineKm for two points
func DistanceKm(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
}
