package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/db"
	"github.com/banshee-data/roadtrip/internal/fsutil"
	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/monitoring"
	"github.com/banshee-data/roadtrip/internal/partition"
	"github.com/banshee-data/roadtrip/internal/route"
	"github.com/banshee-data/roadtrip/internal/stats"
	"github.com/banshee-data/roadtrip/internal/subject"
	"github.com/banshee-data/roadtrip/internal/testutil"
	"github.com/banshee-data/roadtrip/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

var (
	tacoBell = subject.Subject{Name: "Taco Bell", Filter: `"brand:wikidata"="Q752941"`}
	wingstop = subject.Subject{Name: "Wingstop", Filter: `"brand:wikidata"="Q8025339"`}
	culvers  = subject.Subject{Name: "Culver's"}
	start    = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fakeFetcher struct {
	mu     sync.Mutex
	points map[string][]geo.Point
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{points: map[string][]geo.Point{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, s subject.Subject) (geo.PointSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := s.Key()
	f.calls[key]++
	if err := f.errs[key]; err != nil {
		return geo.PointSet{}, err
	}
	return geo.PointSet{Subject: key, FetchedAt: start, Points: f.points[key]}, nil
}

func (f *fakeFetcher) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// tripFor routes points with one-mile, one-minute legs.
func tripFor(points []geo.Point) route.Trip {
	legs := make([]route.Leg, len(points))
	for i := range legs {
		legs[i] = route.Leg{Distance: 1609.344, Duration: 60}
	}
	return route.Trip{Distance: 1609.344 * float64(len(legs)), Duration: 60 * float64(len(legs)), Legs: legs}
}

type fakeResolver struct {
	mu    sync.Mutex
	fail  map[string]error // keyed by the first point's Name
	deny  bool
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, points []geo.Point) (route.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := r.fail[points[0].Name]; err != nil {
		return route.Resolution{}, err
	}
	if r.deny {
		return route.BackendError("NoTrips: no trip found"), nil
	}
	return route.OK(tripFor(points)), nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(ar *route.AggregateRoute, ps geo.PointSet) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("\x89PNG " + ar.Subject), nil
}

type fakeArchiver struct {
	runs      []db.Run
	summaries [][]stats.Summary
	err       error
}

func (a *fakeArchiver) RecordRun(ctx context.Context, run db.Run, summaries []stats.Summary, boards []stats.Leaderboard) error {
	a.runs = append(a.runs, run)
	a.summaries = append(a.summaries, summaries)
	return a.err
}

type harness struct {
	ctrl     *Controller
	mfs      *fsutil.MemoryFileSystem
	fetcher  *fakeFetcher
	resolver *fakeResolver
	renderer *fakeRenderer
	archiver *fakeArchiver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	h := &harness{
		mfs:      mfs,
		fetcher:  newFakeFetcher(),
		resolver: &fakeResolver{fail: map[string]error{}},
		renderer: &fakeRenderer{},
		archiver: &fakeArchiver{},
	}
	h.fetcher.points["taco-bell"] = testutil.ScatterPoints(120, 1)
	h.fetcher.points["wingstop"] = testutil.ScatterPoints(30, 2)
	h.ctrl = &Controller{
		Store:   cache.New("/cache", mfs),
		Fetcher: h.fetcher,
		Router: &route.Aggregator{
			Resolver:    h.resolver,
			Splitter:    partition.New(50, partition.DefaultSeed, partition.DefaultIterations),
			Concurrency: 2,
		},
		Renderer:           h.renderer,
		Archiver:           h.archiver,
		Clock:              timeutil.NewMockClock(start),
		DrivingHoursPerDay: 12,
		LeaderboardSize:    10,
		Concurrency:        2,
	}
	return h
}

func outcomes(r SubjectReport) map[cache.Stage]Outcome {
	out := make(map[cache.Stage]Outcome)
	for _, s := range r.Stages {
		out[s.Stage] = s.Outcome
	}
	return out
}

func all(o Outcome) map[cache.Stage]Outcome {
	return map[cache.Stage]Outcome{
		cache.StagePoints:   o,
		cache.StageRoute:    o,
		cache.StageArtifact: o,
		cache.StageSummary:  o,
	}
}

func TestRunSubjectComputesEveryStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	report := h.ctrl.RunSubject(ctx, tacoBell)
	assert.Equal(t, "taco-bell", report.Key)
	assert.Equal(t, all(Computed), outcomes(report))
	for _, stage := range cache.Stages {
		assert.True(t, h.ctrl.Store.Exists("taco-bell", stage), "stage %s", stage)
	}

	var sum stats.Summary
	require.NoError(t, h.ctrl.Store.GetJSON("taco-bell", cache.StageSummary, &sum))
	assert.Equal(t, "Taco Bell", sum.Name)
	assert.True(t, start.Equal(sum.ComputedAt))
	assert.Equal(t, 120, sum.NumLocations)
	assert.Greater(t, sum.NumPartitions, 1, "120 points exceed the 50 point limit")
	assert.Equal(t, sum.NumPartitions, sum.NumTrips)
	assert.Equal(t, 120.0, sum.TotalMiles)

	// A second pass touches nothing.
	again := h.ctrl.RunSubject(ctx, tacoBell)
	assert.Equal(t, all(Cached), outcomes(again))
	assert.Equal(t, 1, h.fetcher.Calls("taco-bell"))
	assert.Equal(t, 1, h.renderer.calls)
}

func TestRunSubjectUnconfigured(t *testing.T) {
	h := newHarness(t)

	report := h.ctrl.RunSubject(context.Background(), culvers)
	assert.Equal(t, all(Skipped), outcomes(report))
	assert.Zero(t, h.fetcher.Calls("culvers"))
	assert.Empty(t, h.mfs.Files("/cache"))
}

func TestRunSubjectEmptyPointSet(t *testing.T) {
	h := newHarness(t)
	h.fetcher.points["taco-bell"] = nil

	report := h.ctrl.RunSubject(context.Background(), tacoBell)
	assert.Equal(t, map[cache.Stage]Outcome{
		cache.StagePoints:   Computed,
		cache.StageRoute:    Skipped,
		cache.StageArtifact: Blocked,
		cache.StageSummary:  Blocked,
	}, outcomes(report))
	assert.Zero(t, h.resolver.calls)
}

func TestRunSubjectFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs["taco-bell"] = errors.New("overpass: connection reset")

	report := h.ctrl.RunSubject(context.Background(), tacoBell)
	assert.Equal(t, map[cache.Stage]Outcome{
		cache.StagePoints:   Failed,
		cache.StageRoute:    Blocked,
		cache.StageArtifact: Blocked,
		cache.StageSummary:  Blocked,
	}, outcomes(report))
	assert.True(t, report.Failed())
	assert.Contains(t, report.Stages[0].Reason, "connection reset")
	assert.Empty(t, h.mfs.Files("/cache"))
}

func TestTransportFaultLeavesRouteAbsent(t *testing.T) {
	h := newHarness(t)
	h.fetcher.points["taco-bell"] = testutil.ClusteredPoints(testutil.Cities[:1], 10, 3)
	h.resolver.fail[testutil.Cities[0].Name] = errors.New("dial tcp: i/o timeout")

	report := h.ctrl.RunSubject(context.Background(), tacoBell)
	assert.Equal(t, Computed, report.Outcome(cache.StagePoints))
	assert.Equal(t, Failed, report.Outcome(cache.StageRoute))
	assert.Equal(t, Blocked, report.Outcome(cache.StageArtifact))
	assert.False(t, h.ctrl.Store.Exists("taco-bell", cache.StageRoute))

	// The fault clears and the next run resumes from the cached points.
	delete(h.resolver.fail, testutil.Cities[0].Name)
	retry := h.ctrl.RunSubject(context.Background(), tacoBell)
	assert.Equal(t, map[cache.Stage]Outcome{
		cache.StagePoints:   Cached,
		cache.StageRoute:    Computed,
		cache.StageArtifact: Computed,
		cache.StageSummary:  Computed,
	}, outcomes(retry))
	assert.Equal(t, 1, h.fetcher.Calls("taco-bell"))
}

func TestRouteWithoutTripsSkipsSummary(t *testing.T) {
	h := newHarness(t)
	h.resolver.deny = true

	report := h.ctrl.RunSubject(context.Background(), wingstop)
	assert.Equal(t, Computed, report.Outcome(cache.StageRoute))
	assert.Equal(t, Computed, report.Outcome(cache.StageArtifact))
	assert.Equal(t, Skipped, report.Outcome(cache.StageSummary))

	var ar route.AggregateRoute
	require.NoError(t, h.ctrl.Store.GetJSON("wingstop", cache.StageRoute, &ar))
	assert.Empty(t, ar.Trips)
	require.Len(t, ar.Failures, 1)
	assert.Equal(t, "NoTrips: no trip found", ar.Failures[0].Reason)
}

func TestMissingDependencyBlocks(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs["wingstop"] = errors.New("offline")
	require.NoError(t, h.ctrl.Store.PutJSON("wingstop", cache.StageRoute, route.AggregateRoute{Subject: "wingstop", Partitions: 1, Trips: []route.Trip{tripFor(testutil.ScatterPoints(3, 1))}}))

	report := h.ctrl.RunSubject(context.Background(), wingstop)
	assert.Equal(t, map[cache.Stage]Outcome{
		cache.StagePoints:   Failed,
		cache.StageRoute:    Cached,
		cache.StageArtifact: Blocked,
		cache.StageSummary:  Blocked,
	}, outcomes(report))
	assert.Zero(t, h.renderer.calls)
}

func TestRenderFailure(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = errors.New("no points to render")

	report := h.ctrl.RunSubject(context.Background(), wingstop)
	assert.Equal(t, Failed, report.Outcome(cache.StageArtifact))
	assert.Equal(t, Blocked, report.Outcome(cache.StageSummary))
	assert.True(t, h.ctrl.Store.Exists("wingstop", cache.StageRoute))
}

func TestRunPublishesAndArchives(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs["wingstop"] = errors.New("offline")
	subjects := []subject.Subject{wingstop, culvers, tacoBell}

	report, err := h.ctrl.Run(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, report.Subjects, 3)
	assert.Equal(t, "wingstop", report.Subjects[0].Key, "reports keep catalog order")
	assert.NotEmpty(t, report.ID)

	computed, failed := report.Counts()
	assert.Equal(t, 1, computed)
	assert.Equal(t, 1, failed)

	require.Len(t, report.Summaries, 1)
	assert.Equal(t, "taco-bell", report.Summaries[0].Key)
	assert.Len(t, report.Leaderboards, len(stats.Metrics))

	var summaries []stats.Summary
	require.NoError(t, h.ctrl.Store.GetShared(cache.SummariesDoc, &summaries))
	assert.Equal(t, report.Summaries, summaries)
	var boards []stats.Leaderboard
	require.NoError(t, h.ctrl.Store.GetShared(cache.LeaderboardsDoc, &boards))
	assert.Equal(t, "total_miles", boards[0].Metric)

	require.Len(t, h.archiver.runs, 1)
	run := h.archiver.runs[0]
	assert.Equal(t, report.ID, run.ID)
	assert.Equal(t, 3, run.Subjects)
	assert.Equal(t, 1, run.Computed)
	assert.Equal(t, 1, run.Failed)
	assert.Len(t, h.archiver.summaries[0], 1)
}

func TestRunArchiveFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.archiver.err = errors.New("database is locked")

	report, err := h.ctrl.Run(context.Background(), []subject.Subject{wingstop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NotNil(t, report)
	assert.True(t, h.ctrl.Store.Exists("wingstop", cache.StageSummary), "stage entries survive an archive failure")
}

func TestPublishLeaderboardsCatalogOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.RunSubject(ctx, tacoBell)
	h.ctrl.RunSubject(ctx, wingstop)

	summaries, _, err := h.ctrl.PublishLeaderboards([]subject.Subject{wingstop, culvers, tacoBell})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "wingstop", summaries[0].Key)
	assert.Equal(t, "taco-bell", summaries[1].Key)
}

func TestResetRecomputesDownstream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.RunSubject(ctx, wingstop)

	require.NoError(t, h.ctrl.Reset("wingstop", cache.StageRoute))
	assert.True(t, h.ctrl.Store.Exists("wingstop", cache.StagePoints))
	assert.False(t, h.ctrl.Store.Exists("wingstop", cache.StageSummary))

	report := h.ctrl.RunSubject(ctx, wingstop)
	assert.Equal(t, Cached, report.Outcome(cache.StagePoints))
	assert.Equal(t, Computed, report.Outcome(cache.StageRoute))
	assert.Equal(t, Computed, report.Outcome(cache.StageSummary))
	assert.Equal(t, 1, h.fetcher.Calls("wingstop"))

	assert.ErrorIs(t, h.ctrl.Reset("wingstop", cache.Stage("tiles")), cache.ErrUnknownStage)
}

func TestClearInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := h.ctrl.Store

	// taco-bell: good route, kept.
	h.ctrl.RunSubject(ctx, tacoBell)

	// wingstop: zero trips, cleared with its downstream stages.
	h.resolver.deny = true
	h.ctrl.RunSubject(ctx, wingstop)
	require.True(t, store.Exists("wingstop", cache.StageArtifact))

	// sonic: malformed route entry.
	sonic := subject.Subject{Name: "Sonic", Filter: `brand=Sonic`}
	require.NoError(t, store.Put("sonic", cache.StageRoute, []byte(`{"partitions": `)))

	cleared, err := h.ctrl.ClearInvalid([]subject.Subject{tacoBell, wingstop, sonic, culvers})
	require.NoError(t, err)
	assert.Equal(t, []string{"wingstop", "sonic"}, cleared)

	assert.True(t, store.Exists("taco-bell", cache.StageRoute))
	assert.True(t, store.Exists("wingstop", cache.StagePoints))
	assert.False(t, store.Exists("wingstop", cache.StageRoute))
	assert.False(t, store.Exists("wingstop", cache.StageArtifact))
	assert.False(t, store.Exists("sonic", cache.StageRoute))
}

func TestUnreadableEntryIsRecomputed(t *testing.T) {
	tests := []struct {
		stage      cache.Stage
		payload    string
		want       map[cache.Stage]Outcome
		wantFetches int
	}{
		{
			stage:   cache.StagePoints,
			payload: `{truncated`,
			want: map[cache.Stage]Outcome{
				cache.StagePoints:   Computed,
				cache.StageRoute:    Computed,
				cache.StageArtifact: Computed,
				cache.StageSummary:  Computed,
			},
			wantFetches: 2,
		},
		{
			stage:   cache.StageRoute,
			payload: `{"subject": "wingstop", "trips": [`,
			want: map[cache.Stage]Outcome{
				cache.StagePoints:   Cached,
				cache.StageRoute:    Computed,
				cache.StageArtifact: Computed,
				cache.StageSummary:  Computed,
			},
			wantFetches: 1,
		},
		{
			stage:   cache.StageArtifact,
			payload: ``,
			want: map[cache.Stage]Outcome{
				cache.StagePoints:   Cached,
				cache.StageRoute:    Cached,
				cache.StageArtifact: Computed,
				cache.StageSummary:  Computed,
			},
			wantFetches: 1,
		},
		{
			stage:   cache.StageSummary,
			payload: `{"key": "wingstop", "total_miles": `,
			want: map[cache.Stage]Outcome{
				cache.StagePoints:   Cached,
				cache.StageRoute:    Cached,
				cache.StageArtifact: Cached,
				cache.StageSummary:  Computed,
			},
			wantFetches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.Equal(t, all(Computed), outcomes(h.ctrl.RunSubject(ctx, wingstop)))

			path, err := h.ctrl.Store.Path("wingstop", tt.stage)
			require.NoError(t, err)
			require.NoError(t, h.mfs.WriteFile(path, []byte(tt.payload), 0644))

			summaries, _, err := h.ctrl.PublishLeaderboards([]subject.Subject{wingstop})
			require.NoError(t, err)
			if tt.stage == cache.StageSummary {
				assert.Empty(t, summaries, "an unreadable summary cannot be ranked")
			}

			assert.Equal(t, tt.want, outcomes(h.ctrl.RunSubject(ctx, wingstop)))
			assert.Equal(t, tt.wantFetches, h.fetcher.Calls("wingstop"))

			// Stable from here on.
			assert.Equal(t, all(Cached), outcomes(h.ctrl.RunSubject(ctx, wingstop)))

			summaries, _, err = h.ctrl.PublishLeaderboards([]subject.Subject{wingstop})
			require.NoError(t, err)
			require.Len(t, summaries, 1)
			assert.Equal(t, "wingstop", summaries[0].Key)
		})
	}
}
