// Package partition splits point sets that exceed the routing backend's
// coordinate limit into geographically coherent partitions.
//
// Partitions are produced by repeatedly clustering oversized groups until
// none exceeds the limit. Clustering, rather than chunking in source order,
// keeps each partition local so the backend's per-partition visiting order
// does not zig-zag across the map.
package partition

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/monitoring"
)

const (
	// DefaultSeed seeds the clusterer when none is configured.
	DefaultSeed uint64 = 0x526f616474726970
	// DefaultIterations bounds Lloyd iterations per split.
	DefaultIterations = 50
)

var (
	// ErrEmptyPointSet is returned when asked to split nothing.
	ErrEmptyPointSet = errors.New("cannot partition an empty point set")
	// ErrInvalidLimit is returned for a limit below one point.
	ErrInvalidLimit = errors.New("partition limit must be at least 1")
)

// Clusterer groups planar points into k clusters, returning member indices.
type Clusterer interface {
	Cluster(points []r2.Vec, k int) [][]int
}

// Partitioner splits point sets into partitions of at most Limit points.
type Partitioner struct {
	Limit     int
	Clusterer Clusterer
}

// New returns a k-means partitioner for a backend accepting at most limit
// points per request.
func New(limit int, seed uint64, iterations int) *Partitioner {
	return &Partitioner{Limit: limit, Clusterer: NewKMeans(seed, iterations)}
}

// ClusterCount is the number of groups an oversized partition of size
// points is split into. The first split of the original set aims for one
// more cluster than strictly needed; later splits bisect.
func ClusterCount(size, limit int, first bool) int {
	k := 2
	if first {
		k = (size+limit-1)/limit + 1
	}
	if k > size {
		k = size
	}
	return k
}

// Split divides points into partitions of at most p.Limit points. The
// partitions are disjoint and together contain every input point exactly
// once. Sets no larger than the limit, including single points, come back
// as one partition.
func (p *Partitioner) Split(points []geo.Point) ([][]geo.Point, error) {
	if len(points) == 0 {
		return nil, ErrEmptyPointSet
	}
	if p.Limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, p.Limit)
	}
	if len(points) <= p.Limit {
		return [][]geo.Point{points}, nil
	}

	var done [][]geo.Point
	queue := [][]geo.Point{points}
	first := true
	splits := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if len(current) <= p.Limit {
			done = append(done, current)
			continue
		}

		k := ClusterCount(len(current), p.Limit, first)
		first = false
		groups := p.split(current, k)
		splits++
		queue = append(queue, groups...)
	}

	monitoring.Logf("partitioned %d points into %d partitions (limit %d, %d splits)", len(points), len(done), p.Limit, splits)
	return done, nil
}

// split clusters current into k non-empty groups, each strictly smaller
// than current. A clustering that fails to divide the input (every point
// in one group) falls back to halving in source order so the worklist
// always makes progress.
func (p *Partitioner) split(current []geo.Point, k int) [][]geo.Point {
	idx := p.Clusterer.Cluster(geo.Project(current), k)

	groups := make([][]geo.Point, 0, len(idx))
	for _, members := range idx {
		if len(members) == 0 {
			continue
		}
		if len(members) >= len(current) {
			monitoring.Logf("clustering did not divide %d points; halving instead", len(current))
			mid := len(current) / 2
			return [][]geo.Point{current[:mid:mid], current[mid:]}
		}
		g := make([]geo.Point, len(members))
		for i, m := range members {
			g[i] = current[m]
		}
		groups = append(groups, g)
	}
	return groups
}
