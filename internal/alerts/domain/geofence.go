package alerts

import "math"

const earthRadiusM = 6371000

// Geofence is a circular region around a site center.
type Geofence struct {
	SiteID  string  `yaml:"site_id" json:"site_id"`
	Name    string  `yaml:"name" json:"name"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lng     float64 `yaml:"lng" json:"lng"`
	RadiusM float64 `yaml:"radius_m" json:"radius_m"`
}

// Contains reports whether the position lies inside the region.
func (g Geofence) Contains(lat, lng float64) bool {
	return HaversineM(g.Lat, g.Lng, lat, lng) <= g.RadiusM
}

// AnyContains reports whether any region contains the position.
func AnyContains(zones []Geofence, lat, lng float64) bool {
	for _, zone := range zones {
		if zone.Contains(lat, lng) {
			return true
		}
	}
	return false
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
