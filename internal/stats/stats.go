// Package stats derives trip statistics from resolved routes and ranks
// subjects against each other.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/route"
	"github.com/banshee-data/roadtrip/internal/units"
)

// PeeBreakHours is the driving time between pee breaks.
const PeeBreakHours = 3

var (
	// ErrEmptyInput is returned by Median for an empty slice.
	ErrEmptyInput = errors.New("median of empty input")
	// ErrNoTrips is returned when a route has no successful trips.
	ErrNoTrips = errors.New("route has no trips")
	// ErrInvalidHoursPerDay is returned for a non-positive driving day.
	ErrInvalidHoursPerDay = errors.New("driving hours per day must be positive")
)

// Summary holds the derived metrics for one subject's route. Distances are
// in miles, durations in hours; every float is rounded to two places.
type Summary struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	ComputedAt time.Time `json:"computed_at"`

	NumLocations  int `json:"num_locations"`
	NumPartitions int `json:"num_partitions"`
	NumFailures   int `json:"num_failures"`
	NumTrips      int `json:"num_trips"`
	NumStops      int `json:"num_stops"`

	TotalMiles        float64 `json:"total_miles"`
	DrivingHours      float64 `json:"driving_hours"`
	Days              float64 `json:"days"`
	StopsPerDay       float64 `json:"stops_per_day"`
	PeeBreaks         int     `json:"pee_breaks"`
	LongestLegMiles   float64 `json:"longest_leg_miles"`
	MedianLegMiles    float64 `json:"median_leg_miles"`
	AverageLegMiles   float64 `json:"average_leg_miles"`
	AverageSpeedMPH   float64 `json:"average_speed_mph"`
	Sparsity          float64 `json:"sparsity"`
	Density           float64 `json:"density"`
	FurthestStopMiles float64 `json:"furthest_stop_miles"`
	NorthernmostLat   float64 `json:"northernmost_lat"`
	SouthernmostLat   float64 `json:"southernmost_lat"`
}

// Compute derives the summary for ar, whose points are ps. Intermediate
// sums are kept unrounded; each stored value is rounded once.
func Compute(ar *route.AggregateRoute, ps geo.PointSet, drivingHoursPerDay float64) (Summary, error) {
	if drivingHoursPerDay <= 0 {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidHoursPerDay, drivingHoursPerDay)
	}
	if len(ar.Trips) == 0 {
		return Summary{}, fmt.Errorf("%s: %w", ar.Subject, ErrNoTrips)
	}

	var meters, seconds, furthest float64
	var stops int
	var legMiles []float64
	for _, trip := range ar.Trips {
		meters += trip.Distance
		seconds += trip.Duration
		stops += trip.Stops()
		furthest = math.Max(furthest, FurthestStopDistance(trip.LegDistances()))
		for _, l := range trip.Legs {
			legMiles = append(legMiles, units.MetersToMiles(l.Distance))
		}
	}

	median, err := Median(legMiles)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: leg lengths: %w", ar.Subject, err)
	}
	ext, err := geo.LatitudeExtent(ps.Points)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", ar.Subject, err)
	}

	miles := units.MetersToMiles(meters)
	hours := units.SecondsToHours(seconds)
	days := (hours + float64(stops)) / drivingHoursPerDay

	return Summary{
		Key:               ar.Subject,
		NumLocations:      len(ps.Points),
		NumPartitions:     ar.Partitions,
		NumFailures:       len(ar.Failures),
		NumTrips:          len(ar.Trips),
		NumStops:          stops,
		TotalMiles:        units.Round2(miles),
		DrivingHours:      units.Round2(hours),
		Days:              units.Round2(days),
		StopsPerDay:       units.Round2(ratio(float64(stops), days)),
		PeeBreaks:         int(math.Round(hours / PeeBreakHours)),
		LongestLegMiles:   units.Round2(floats.Max(legMiles)),
		MedianLegMiles:    units.Round2(median),
		AverageLegMiles:   units.Round2(stat.Mean(legMiles, nil)),
		AverageSpeedMPH:   units.Round2(ratio(miles, hours)),
		Sparsity:          units.Round2(ratio(median, float64(stops))),
		Density:           units.Round2(ratio(float64(stops), days)),
		FurthestStopMiles: units.Round2(units.MetersToMiles(furthest)),
		NorthernmostLat:   units.Round2(ext.Northernmost),
		SouthernmostLat:   units.Round2(ext.Southernmost),
	}, nil
}

// ratio returns n/d, or 0 when d is 0.
func ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

// Median returns the middle value of xs, averaging the two middle values
// for an even count. xs is not modified.
func Median(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrEmptyInput
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

// FurthestStopDistance returns the largest sum of two consecutive legs,
// the cost of detouring to the most isolated stop. Pairs are taken for
// i < len(legs)-2, so the last two legs never pair.
func FurthestStopDistance(legs []float64) float64 {
	var furthest float64
	for i := 0; i < len(legs)-2; i++ {
		furthest = math.Max(furthest, legs[i]+legs[i+1])
	}
	return furthest
}
