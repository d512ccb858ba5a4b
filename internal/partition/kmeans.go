package partition

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"
)

// KMeans groups planar points into k clusters with Lloyd's algorithm and
// k-means++ seeding. The zero value is not usable; see NewKMeans.
type KMeans struct {
	seed          uint64
	maxIterations int
}

// NewKMeans returns a clusterer with a fixed seed so identical inputs
// always produce identical groupings.
func NewKMeans(seed uint64, maxIterations int) *KMeans {
	if maxIterations <= 0 {
		maxIterations = DefaultIterations
	}
	return &KMeans{seed: seed, maxIterations: maxIterations}
}

// Cluster assigns each point to one of k clusters and returns the member
// indices of each cluster. When len(points) >= k every cluster is non-empty.
func (km *KMeans) Cluster(points []r2.Vec, k int) [][]int {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	rng := rand.New(rand.NewPCG(km.seed, uint64(n)<<32|uint64(k)))
	centroids := seedCentroids(points, k, rng)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < km.maxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if fillEmpty(points, centroids, assign, k) {
			changed = true
		}
		recompute(points, assign, centroids)
		if !changed {
			break
		}
	}
	fillEmpty(points, centroids, assign, k)

	groups := make([][]int, k)
	for i, c := range assign {
		groups[c] = append(groups[c], i)
	}
	return groups
}

// seedCentroids picks k initial centroids with k-means++: each subsequent
// centroid is drawn with probability proportional to its squared distance
// from the nearest centroid chosen so far.
func seedCentroids(points []r2.Vec, k int, rng *rand.Rand) []r2.Vec {
	centroids := make([]r2.Vec, 0, k)
	centroids = append(centroids, points[rng.IntN(len(points))])

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = r2.Norm2(r2.Sub(p, centroids[nearest(p, centroids)]))
			total += dist[i]
		}
		if total == 0 {
			// Every remaining point coincides with a centroid.
			centroids = append(centroids, points[rng.IntN(len(points))])
			continue
		}
		target := rng.Float64() * total
		next := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				next = i
				break
			}
		}
		centroids = append(centroids, points[next])
	}
	return centroids
}

func nearest(p r2.Vec, centroids []r2.Vec) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := r2.Norm2(r2.Sub(p, centroid)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func recompute(points []r2.Vec, assign []int, centroids []r2.Vec) {
	sums := make([]r2.Vec, len(centroids))
	counts := make([]int, len(centroids))
	for i, c := range assign {
		sums[c] = r2.Add(sums[c], points[i])
		counts[c]++
	}
	for c := range centroids {
		if counts[c] > 0 {
			centroids[c] = r2.Scale(1/float64(counts[c]), sums[c])
		}
	}
}

// fillEmpty moves a point into every empty cluster: the member of the
// largest cluster farthest from that cluster's centroid. It reports whether
// any assignment changed.
func fillEmpty(points []r2.Vec, centroids []r2.Vec, assign []int, k int) bool {
	changed := false
	for {
		counts := make([]int, k)
		for _, c := range assign {
			counts[c]++
		}
		empty, largest := -1, 0
		for c, n := range counts {
			if n == 0 && empty < 0 {
				empty = c
			}
			if n > counts[largest] {
				largest = c
			}
		}
		if empty < 0 || counts[largest] < 2 {
			return changed
		}

		far, farDist := -1, -1.0
		for i, c := range assign {
			if c != largest {
				continue
			}
			if d := r2.Norm2(r2.Sub(points[i], centroids[largest])); d > farDist {
				far, farDist = i, d
			}
		}
		assign[far] = empty
		centroids[empty] = points[far]
		changed = true
	}
}
