package tools

import "math"

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// meanSpeedKMH per transport mode; walking is the default.
var meanSpeedKMH = map[string]float64{
	"walking": 5,
	"cycling": 15,
	"transit": 20,
	"driving": 30,
}

// TravelMinutes estimates travel time between stops for a transport mode.
func TravelMinutes(distanceKM float64, transport string) int {
	speed, ok := meanSpeedKMH[transport]
	if !ok {
		speed = meanSpeedKMH["walking"]
	}
	return int(math.Round(distanceKM / speed * 60))
}
