package location

import "math"

// ============================================================
// DISTANCE CALCULATION (Haversine Formula)
// ============================================================

const earthRadiusMeters = 6371000.0

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Distance is the great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
