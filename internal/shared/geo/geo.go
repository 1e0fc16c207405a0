package geo

import "math"

// EarthRadiusM is the mean Earth radius used for all great-circle math.
const EarthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineMeters(lat1, lng1, lat2, lng2) / 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
