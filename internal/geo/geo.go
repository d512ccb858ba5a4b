// Package geo holds the point types shared by the point source, the
// partitioner and the route resolver.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/twpayne/go-polyline"
	"gonum.org/v1/gonum/spatial/r2"
)

// PolylinePrecision is the number of decimal places encoded in trip
// geometries returned by the routing backend (polyline6).
const PolylinePrecision = 6

// Point is a single location. Points are never mutated after they are fetched.
type Point struct {
	ID            int64   `json:"id"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Name          string  `json:"name,omitempty"`
	Amenity       string  `json:"amenity,omitempty"`
	Brand         string  `json:"brand,omitempty"`
	BrandWikidata string  `json:"brand_wikidata,omitempty"`
}

// PointSet is the ordered collection of points fetched for one subject.
// Order is source order and carries no geographic meaning.
type PointSet struct {
	Subject   string    `json:"subject"`
	FetchedAt time.Time `json:"fetched_at"`
	Points    []Point   `json:"points"`
}

// Len returns the number of points in the set.
func (ps PointSet) Len() int {
	return len(ps.Points)
}

// ErrNoPoints is returned when an extent is requested for an empty set.
var ErrNoPoints = errors.New("point set is empty")

// Extent is the latitude range covered by a point set.
type Extent struct {
	Northernmost float64
	Southernmost float64
}

// LatitudeExtent returns the northern-most and southern-most latitudes.
func LatitudeExtent(points []Point) (Extent, error) {
	if len(points) == 0 {
		return Extent{}, ErrNoPoints
	}
	ext := Extent{Northernmost: points[0].Lat, Southernmost: points[0].Lat}
	for _, p := range points[1:] {
		ext.Northernmost = math.Max(ext.Northernmost, p.Lat)
		ext.Southernmost = math.Min(ext.Southernmost, p.Lat)
	}
	return ext, nil
}

// Project maps points onto a plane with an equirectangular projection
// centred on the set's mean latitude. Distances in the plane are in degrees
// of latitude, which is accurate enough to group nearby locations.
func Project(points []Point) []r2.Vec {
	if len(points) == 0 {
		return nil
	}
	var meanLat float64
	for _, p := range points {
		meanLat += p.Lat
	}
	meanLat /= float64(len(points))
	scale := math.Cos(meanLat * math.Pi / 180)

	out := make([]r2.Vec, len(points))
	for i, p := range points {
		out[i] = r2.Vec{X: p.Lon * scale, Y: p.Lat}
	}
	return out
}

// LatLon is a decoded geometry vertex.
type LatLon struct {
	Lat float64
	Lon float64
}

// DecodePolyline decodes an encoded polyline of the given precision.
func DecodePolyline(encoded string, precision int) ([]LatLon, error) {
	codec := polyline.Codec{Dim: 2, Scale: math.Pow10(precision)}
	coords, rest, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	out := make([]LatLon, len(coords))
	for i, c := range coords {
		out[i] = LatLon{Lat: c[0], Lon: c[1]}
	}
	return out, nil
}
