package route

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/monitoring"
)

// ErrUnknownStatus is returned when a resolver produces a Resolution with
// neither status.
var ErrUnknownStatus = errors.New("resolution has unknown status")

// Splitter divides a point set into partitions the resolver accepts.
type Splitter interface {
	Split(points []geo.Point) ([][]geo.Point, error)
}

// Aggregator resolves every partition of a point set and merges the results.
type Aggregator struct {
	Resolver    Resolver
	Splitter    Splitter
	Concurrency int // max partitions in flight; < 1 means sequential
}

type outcome struct {
	res  Resolution
	size int
}

// Aggregate partitions ps, resolves each partition and merges the trips and
// backend failures in partition order. A transport fault on any partition
// cancels the rest and returns an error with no route.
func (a *Aggregator) Aggregate(ctx context.Context, ps geo.PointSet) (*AggregateRoute, error) {
	parts, err := a.Splitter.Split(ps.Points)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", ps.Subject, err)
	}

	results := make([]outcome, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	limit := a.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, part := range parts {
		g.Go(func() error {
			// An earlier partition already faulted.
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.Resolver.Resolve(gctx, part)
			if err != nil {
				return fmt.Errorf("resolve partition %d/%d (%d points): %w", i+1, len(parts), len(part), err)
			}
			results[i] = outcome{res: res, size: len(part)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ar := &AggregateRoute{Subject: ps.Subject, Partitions: len(parts), Trips: []Trip{}, Failures: []Failure{}}
	for i, r := range results {
		switch r.res.Status {
		case StatusOK:
			if r.res.Trip == nil {
				return nil, fmt.Errorf("partition %d: ok resolution without trip", i)
			}
			ar.Trips = append(ar.Trips, *r.res.Trip)
		case StatusBackendError:
			ar.Failures = append(ar.Failures, Failure{Partition: i, Size: r.size, Reason: r.res.Reason})
			monitoring.Logf("[%s] partition %d (%d points) not routed: %s", ps.Subject, i, r.size, r.res.Reason)
		default:
			return nil, fmt.Errorf("partition %d: %w %q", i, ErrUnknownStatus, r.res.Status)
		}
	}
	if err := ar.Validate(); err != nil {
		return nil, err
	}
	return ar, nil
}
