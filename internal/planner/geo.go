package planner

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two WGS84 points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// speedKmh is the assumed straight-line speed per travel mode, used to turn
// the user's travel-time limit into a search radius.
func speedKmh(mode TravelMode) float64 {
	switch mode {
	case ModeWalk:
		return 4
	case ModeTransit:
		return 15
	case ModeCar:
		return 30
	default:
		return 4
	}
}

// SearchRadiusKm converts a travel-time limit into a candidate search radius.
// The 1.5 factor keeps stores reachable by slightly indirect routes inside
// the search area.
func SearchRadiusKm(mode TravelMode, maxMinutes int) float64 {
	return float64(maxMinutes) / 60.0 * speedKmh(mode) * 1.5
}

// BoundingBox is the lat/lng rectangle covering a search radius around a
// point. Degree-per-km factors are tuned for Korean latitudes.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoxAround returns the bounding box for radiusKm around (lat, lng).
func BoxAround(lat, lng, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0
	lngDelta := radiusKm / 88.0
	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}

// FallbackRoute estimates travel when no routing provider result is
// available. Distances are padded by a detour factor before converting to
// minutes; car mode assumes 30 km/h average urban speed.
func FallbackRoute(distanceKm float64, mode TravelMode) RouteEstimate {
	var minutes float64
	switch mode {
	case ModeWalk:
		minutes = distanceKm * 1000 * 1.3 / 66.7
	case ModeTransit:
		minutes = distanceKm * 1000 * 1.8 / 66.7
	case ModeCar:
		minutes = distanceKm / 0.5
	default:
		minutes = distanceKm * 1000 * 1.3 / 66.7
	}

	m := int(math.Ceil(minutes))
	if m < 1 {
		m = 1
	}
	return RouteEstimate{
		DistanceKm:    math.Round(distanceKm*100) / 100,
		TravelMinutes: m,
		IsEstimated:   true,
	}
}
