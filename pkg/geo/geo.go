// Package geo provides great-circle distance and bounding-box helpers for
// coordinates expressed in decimal degrees.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the great-circle distance in kilometres between two
// coordinate pairs using the haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceMeters returns the great-circle distance in metres.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceKm(lat1, lon1, lat2, lon2) * 1000
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// BBox is a south/west/north/east bounding box in decimal degrees.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// BBoxOf returns the smallest bounding box containing all points.
// ok is false when points is empty.
func BBoxOf(points []LatLon) (box BBox, ok bool) {
	if len(points) == 0 {
		return BBox{}, false
	}
	box = BBox{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLon: points[0].Lon, MaxLon: points[0].Lon,
	}
	for _, p := range points[1:] {
		box.MinLat = math.Min(box.MinLat, p.Lat)
		box.MaxLat = math.Max(box.MaxLat, p.Lat)
		box.MinLon = math.Min(box.MinLon, p.Lon)
		box.MaxLon = math.Max(box.MaxLon, p.Lon)
	}
	return box, true
}

// Expand returns the box grown by deg degrees on every side.
func (b BBox) Expand(deg float64) BBox {
	return BBox{
		MinLat: b.MinLat - deg,
		MinLon: b.MinLon - deg,
		MaxLat: b.MaxLat + deg,
		MaxLon: b.MaxLon + deg,
	}
}

// Centroid returns the arithmetic mean of the points.
// ok is false when points is empty.
func Centroid(points []LatLon) (c LatLon, ok bool) {
	if len(points) == 0 {
		return LatLon{}, false
	}
	for _, p := range points {
		c.Lat += p.Lat
		c.Lon += p.Lon
	}
	c.Lat /= float64(len(points))
	c.Lon /= float64(len(points))
	return c, true
}
