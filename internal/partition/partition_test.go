package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/monitoring"
	"github.com/banshee-data/roadtrip/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// checkPartitions asserts every partition is within limit, partitions are
// pairwise disjoint and together contain exactly the input points.
func checkPartitions(t *testing.T, input []geo.Point, parts [][]geo.Point, limit int) {
	t.Helper()

	seen := make(map[int64]int)
	var flat []geo.Point
	for i, part := range parts {
		if len(part) == 0 {
			t.Errorf("partition %d is empty", i)
		}
		if len(part) > limit {
			t.Errorf("partition %d has %d points, limit %d", i, len(part), limit)
		}
		for _, p := range part {
			if prev, dup := seen[p.ID]; dup {
				t.Errorf("point %d appears in partitions %d and %d", p.ID, prev, i)
			}
			seen[p.ID] = i
		}
		flat = append(flat, part...)
	}
	assert.Equal(t, testutil.SortedIDs(input), testutil.SortedIDs(flat), "union of partitions must equal input")
}

func TestSplitProperties(t *testing.T) {
	tests := []struct {
		n     int
		limit int
	}{
		{2, 1},
		{10, 3},
		{99, 100},
		{100, 100},
		{101, 100},
		{250, 100},
		{1000, 100},
		{777, 25},
		{64, 7},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/limit=%d", tt.n, tt.limit), func(t *testing.T) {
			points := testutil.ScatterPoints(tt.n, uint64(tt.n))
			parts, err := New(tt.limit, DefaultSeed, DefaultIterations).Split(points)
			require.NoError(t, err)
			checkPartitions(t, points, parts, tt.limit)
		})
	}
}

func TestSplitUnderLimitIsSinglePartition(t *testing.T) {
	points := testutil.ScatterPoints(40, 3)
	parts, err := New(100, DefaultSeed, DefaultIterations).Split(points)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, points, parts[0], "order is preserved when no split is needed")
}

func TestSplitSinglePoint(t *testing.T) {
	point := []geo.Point{{ID: 42, Lat: 36.1, Lon: -115.1}}
	for _, limit := range []int{1, 2, 100} {
		parts, err := New(limit, DefaultSeed, DefaultIterations).Split(point)
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, point, parts[0])
	}
}

func TestSplitEmptyIsError(t *testing.T) {
	_, err := New(100, DefaultSeed, DefaultIterations).Split(nil)
	assert.ErrorIs(t, err, ErrEmptyPointSet)
}

func TestSplitInvalidLimit(t *testing.T) {
	_, err := New(0, DefaultSeed, DefaultIterations).Split(testutil.ScatterPoints(3, 1))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestSplitDeterministic(t *testing.T) {
	points := testutil.ScatterPoints(500, 11)
	a, err := New(60, DefaultSeed, DefaultIterations).Split(points)
	require.NoError(t, err)
	b, err := New(60, DefaultSeed, DefaultIterations).Split(points)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitKeepsCitiesTogether(t *testing.T) {
	// Three tight clusters of 30 with a limit of 40: a first split into
	// ceil(90/40)+1 = 4 groups must never mix cities.
	points := testutil.ClusteredPoints(testutil.Cities[:3], 30, 5)
	parts, err := New(40, DefaultSeed, DefaultIterations).Split(points)
	require.NoError(t, err)
	checkPartitions(t, points, parts, 40)

	for i, part := range parts {
		for _, p := range part {
			if p.Name != part[0].Name {
				t.Errorf("partition %d mixes %s and %s", i, part[0].Name, p.Name)
				break
			}
		}
	}
}

func TestSplitIdenticalPoints(t *testing.T) {
	points := make([]geo.Point, 25)
	for i := range points {
		points[i] = geo.Point{ID: int64(i + 1), Lat: 35.0, Lon: -90.0}
	}
	parts, err := New(4, DefaultSeed, DefaultIterations).Split(points)
	require.NoError(t, err)
	checkPartitions(t, points, parts, 4)
}

type lumpClusterer struct{ calls int }

// Cluster puts everything in the first group.
func (l *lumpClusterer) Cluster(points []r2.Vec, k int) [][]int {
	l.calls++
	groups := make([][]int, k)
	for i := range points {
		groups[0] = append(groups[0], i)
	}
	return groups
}

func TestSplitFallsBackWhenClusteringStalls(t *testing.T) {
	lump := &lumpClusterer{}
	p := &Partitioner{Limit: 3, Clusterer: lump}
	points := testutil.ScatterPoints(10, 2)

	parts, err := p.Split(points)
	require.NoError(t, err)
	checkPartitions(t, points, parts, 3)
	assert.Positive(t, lump.calls)
}

func TestClusterCount(t *testing.T) {
	tests := []struct {
		size, limit int
		first       bool
		want        int
	}{
		{250, 100, true, 4},
		{200, 100, true, 3},
		{101, 100, true, 3},
		{1000, 100, true, 11},
		{250, 100, false, 2},
		{101, 100, false, 2},
		{5, 1, true, 5},
		{2, 1, false, 2},
	}

	for _, tt := range tests {
		if got := ClusterCount(tt.size, tt.limit, tt.first); got != tt.want {
			t.Errorf("ClusterCount(%d, %d, %v) = %d, want %d", tt.size, tt.limit, tt.first, got, tt.want)
		}
	}
}

func TestKMeansNonEmptyClusters(t *testing.T) {
	km := NewKMeans(DefaultSeed, DefaultIterations)
	vecs := geo.Project(testutil.ScatterPoints(30, 9))

	for _, k := range []int{2, 5, 30, 40} {
		groups := km.Cluster(vecs, k)
		wantK := k
		if wantK > len(vecs) {
			wantK = len(vecs)
		}
		require.Len(t, groups, wantK)
		total := 0
		for i, g := range groups {
			assert.NotEmpty(t, g, "k=%d cluster %d empty", k, i)
			total += len(g)
		}
		assert.Equal(t, len(vecs), total)
	}

	assert.Nil(t, km.Cluster(nil, 3))
}
