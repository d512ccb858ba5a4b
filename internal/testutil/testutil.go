// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/banshee-data/roadtrip/internal/geo"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// City is a named fixture location.
type City struct {
	Name string
	Lat  float64
	Lon  float64
}

// Cities are well separated reference locations for clustering fixtures.
var Cities = []City{
	{"Seattle", 47.6062, -122.3321},
	{"Miami", 25.7617, -80.1918},
	{"Denver", 39.7392, -104.9903},
	{"Boston", 42.3601, -71.0589},
	{"Austin", 30.2672, -97.7431},
}

// ScatterPoints returns n points spread uniformly over the contiguous
// United States. The same seed always yields the same points. IDs run
// from 1 to n.
func ScatterPoints(n int, seed uint64) []geo.Point {
	rng := rand.New(rand.NewPCG(seed, 0x706f696e7473))
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = geo.Point{
			ID:  int64(i + 1),
			Lat: 25 + rng.Float64()*24,
			Lon: -124 + rng.Float64()*57,
		}
	}
	return points
}

// ClusteredPoints returns perCity points within a few kilometres of each
// city, in city order. IDs run from 1.
func ClusteredPoints(cities []City, perCity int, seed uint64) []geo.Point {
	rng := rand.New(rand.NewPCG(seed, 0x636974696573))
	points := make([]geo.Point, 0, len(cities)*perCity)
	for _, c := range cities {
		for j := 0; j < perCity; j++ {
			points = append(points, geo.Point{
				ID:   int64(len(points) + 1),
				Lat:  c.Lat + (rng.Float64()-0.5)*0.1,
				Lon:  c.Lon + (rng.Float64()-0.5)*0.1,
				Name: c.Name,
			})
		}
	}
	return points
}

// SortedIDs returns the IDs of points in ascending order.
func SortedIDs(points []geo.Point) []int64 {
	ids := make([]int64, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
