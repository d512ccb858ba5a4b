// Package route holds the routing result types and the aggregator that
// merges per-partition routing results into one logical route per subject.
package route

import (
	"context"
	"fmt"

	"github.com/banshee-data/roadtrip/internal/geo"
)

// Status discriminates a Resolution.
type Status string

const (
	// StatusOK marks a resolution carrying a trip.
	StatusOK Status = "ok"
	// StatusBackendError marks a well-formed "could not route" response.
	StatusBackendError Status = "backend-error"
)

// Leg is the drive between two consecutive stops of a trip.
type Leg struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

// Trip is a round trip through every point of one partition.
type Trip struct {
	Geometry string  `json:"geometry"` // encoded polyline, geo.PolylinePrecision
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
	Legs     []Leg   `json:"legs"`
}

// LegDistances returns the distance of each leg in meters.
func (t Trip) LegDistances() []float64 {
	out := make([]float64, len(t.Legs))
	for i, l := range t.Legs {
		out[i] = l.Distance
	}
	return out
}

// Stops is the number of stops the trip visits after leaving its origin.
func (t Trip) Stops() int {
	if len(t.Legs) == 0 {
		return 0
	}
	return len(t.Legs) - 1
}

// Resolution is the backend's answer for one partition. Check Status
// before reading Trip or Reason.
type Resolution struct {
	Status Status `json:"status"`
	Trip   *Trip  `json:"trip,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// OK returns a successful resolution.
func OK(t Trip) Resolution {
	return Resolution{Status: StatusOK, Trip: &t}
}

// BackendError returns a resolution for a backend-reported routing error.
func BackendError(reason string) Resolution {
	return Resolution{Status: StatusBackendError, Reason: reason}
}

// Resolver computes a trip through an ordered set of points. A non-nil
// error is a transport fault; a routing error the backend reported is a
// Resolution with StatusBackendError.
type Resolver interface {
	Resolve(ctx context.Context, points []geo.Point) (Resolution, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, points []geo.Point) (Resolution, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, points []geo.Point) (Resolution, error) {
	return f(ctx, points)
}

// Failure records a partition the backend could not route.
type Failure struct {
	Partition int    `json:"partition"`
	Size      int    `json:"size"`
	Reason    string `json:"reason"`
}

// AggregateRoute is the merged result for one subject. Trips and Failures
// follow partition dispatch order; trips do not connect to each other.
type AggregateRoute struct {
	Subject    string    `json:"subject"`
	Partitions int       `json:"partitions"`
	Trips      []Trip    `json:"trips"`
	Failures   []Failure `json:"failures"`
}

// Validate checks that every partition is accounted for exactly once.
func (ar *AggregateRoute) Validate() error {
	if ar.Partitions < 1 {
		return fmt.Errorf("route %q: no partitions", ar.Subject)
	}
	if got := len(ar.Trips) + len(ar.Failures); got != ar.Partitions {
		return fmt.Errorf("route %q: %d trips + %d failures != %d partitions",
			ar.Subject, len(ar.Trips), len(ar.Failures), ar.Partitions)
	}
	return nil
}

// Legs returns every leg of every trip, in trip order.
func (ar *AggregateRoute) Legs() []Leg {
	var legs []Leg
	for _, t := range ar.Trips {
		legs = append(legs, t.Legs...)
	}
	return legs
}
