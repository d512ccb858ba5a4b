// Package pipeline drives each subject through the cached stages
//
//	points -> route -> artifact -> summary
//
// running a stage only when its own entry is absent and every earlier
// stage's entry is present. A failure is contained to its subject and
// leaves the cache untouched, so rerunning picks up where it stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/db"
	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/monitoring"
	"github.com/banshee-data/roadtrip/internal/route"
	"github.com/banshee-data/roadtrip/internal/stats"
	"github.com/banshee-data/roadtrip/internal/subject"
	"github.com/banshee-data/roadtrip/internal/timeutil"
)

// Fetcher retrieves a subject's locations.
type Fetcher interface {
	Fetch(ctx context.Context, s subject.Subject) (geo.PointSet, error)
}

// Router turns a point set into an aggregate route.
type Router interface {
	Aggregate(ctx context.Context, ps geo.PointSet) (*route.AggregateRoute, error)
}

// Renderer draws the artifact for a route.
type Renderer interface {
	Render(ar *route.AggregateRoute, ps geo.PointSet) ([]byte, error)
}

// Archiver records finished runs.
type Archiver interface {
	RecordRun(ctx context.Context, run db.Run, summaries []stats.Summary, boards []stats.Leaderboard) error
}

// errSkip marks a stage with nothing to compute.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

// errBlocked marks a dependency entry that could not be read.
type errBlocked struct{ err error }

func (e errBlocked) Error() string { return e.err.Error() }

// Controller runs subjects through the pipeline.
type Controller struct {
	Store    *cache.Store
	Fetcher  Fetcher
	Router   Router
	Renderer Renderer
	Archiver Archiver // optional
	Clock    timeutil.Clock

	DrivingHoursPerDay float64
	LeaderboardSize    int
	Concurrency        int // subjects in flight; < 1 means sequential
}

func (c *Controller) clock() timeutil.Clock {
	if c.Clock == nil {
		return timeutil.RealClock{}
	}
	return c.Clock
}

// RunSubject advances s through every stage it can and reports what
// happened at each.
func (c *Controller) RunSubject(ctx context.Context, s subject.Subject) SubjectReport {
	key := s.Key()
	report := SubjectReport{Key: key, Name: s.Name}

	if !s.Configured() {
		monitoring.Subject(key).Printf("no filter configured; skipping")
		for _, stage := range cache.Stages {
			report.Stages = append(report.Stages, StageResult{Stage: stage, Outcome: Skipped, Reason: "not configured"})
		}
		return report
	}

	for _, stage := range cache.Stages {
		report.Stages = append(report.Stages, c.runStage(ctx, s, stage))
	}
	return report
}

func (c *Controller) runStage(ctx context.Context, s subject.Subject, stage cache.Stage) StageResult {
	key := s.Key()
	log := monitoring.Stage(key, string(stage))

	present, err := c.present(key, stage)
	if err != nil {
		log.Printf("failed: %v", err)
		return StageResult{Stage: stage, Outcome: Failed, Reason: err.Error()}
	}
	if present {
		return StageResult{Stage: stage, Outcome: Cached}
	}
	for _, dep := range stage.Dependencies() {
		if !c.Store.Exists(key, dep) {
			return StageResult{Stage: stage, Outcome: Blocked, Reason: fmt.Sprintf("%s missing", dep)}
		}
	}

	clock := c.clock()
	start := clock.Now()
	err = c.compute(ctx, s, stage)
	result := StageResult{Stage: stage, Outcome: Computed, Duration: clock.Since(start)}

	var skip errSkip
	var blocked errBlocked
	switch {
	case err == nil:
		log.Printf("computed in %s", result.Duration)
	case errors.As(err, &skip):
		result.Outcome, result.Reason = Skipped, skip.reason
		log.Printf("skipped: %s", skip.reason)
	case errors.As(err, &blocked):
		result.Outcome, result.Reason = Blocked, blocked.Error()
		log.Printf("blocked: %v", blocked.err)
	default:
		result.Outcome, result.Reason = Failed, err.Error()
		log.Printf("failed: %v", err)
	}
	return result
}

// present reports whether key's entry for stage exists and reads back. An
// entry that exists but does not read is removed with everything after it
// so the stage is recomputed.
func (c *Controller) present(key string, stage cache.Stage) (bool, error) {
	if !c.Store.Exists(key, stage) {
		return false, nil
	}

	var err error
	switch stage {
	case cache.StagePoints:
		var ps geo.PointSet
		err = c.Store.GetJSON(key, stage, &ps)
	case cache.StageRoute:
		var ar route.AggregateRoute
		err = c.Store.GetJSON(key, stage, &ar)
	case cache.StageArtifact:
		_, err = c.Store.Get(key, stage)
	case cache.StageSummary:
		var sum stats.Summary
		err = c.Store.GetJSON(key, stage, &sum)
	default:
		var raw json.RawMessage
		err = c.Store.GetJSON(key, stage, &raw)
	}
	if !cache.IsMiss(err) {
		return err == nil, err
	}

	monitoring.Stage(key, string(stage)).Printf("discarding unreadable entry: %v", err)
	if err := c.Store.Invalidate(key, stage); err != nil {
		return false, err
	}
	return false, nil
}

func (c *Controller) compute(ctx context.Context, s subject.Subject, stage cache.Stage) error {
	key := s.Key()
	switch stage {
	case cache.StagePoints:
		ps, err := c.Fetcher.Fetch(ctx, s)
		if err != nil {
			return err
		}
		return c.Store.PutJSON(key, cache.StagePoints, ps)

	case cache.StageRoute:
		ps, err := c.loadPoints(key)
		if err != nil {
			return err
		}
		if ps.Len() == 0 {
			return errSkip{"no locations"}
		}
		ar, err := c.Router.Aggregate(ctx, ps)
		if err != nil {
			return err
		}
		return c.Store.PutJSON(key, cache.StageRoute, ar)

	case cache.StageArtifact:
		ps, ar, err := c.loadRoute(key)
		if err != nil {
			return err
		}
		png, err := c.Renderer.Render(ar, ps)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		return c.Store.Put(key, cache.StageArtifact, png)

	case cache.StageSummary:
		ps, ar, err := c.loadRoute(key)
		if err != nil {
			return err
		}
		sum, err := stats.Compute(ar, ps, c.DrivingHoursPerDay)
		if errors.Is(err, stats.ErrNoTrips) {
			return errSkip{"route has no trips"}
		}
		if err != nil {
			return err
		}
		sum.Name = s.Name
		sum.ComputedAt = c.clock().Now().UTC()
		return c.Store.PutJSON(key, cache.StageSummary, sum)
	}
	return fmt.Errorf("%w: %q", cache.ErrUnknownStage, string(stage))
}

func (c *Controller) loadPoints(key string) (geo.PointSet, error) {
	var ps geo.PointSet
	if err := c.Store.GetJSON(key, cache.StagePoints, &ps); err != nil {
		if cache.IsMiss(err) {
			return ps, errBlocked{err}
		}
		return ps, err
	}
	return ps, nil
}

func (c *Controller) loadRoute(key string) (geo.PointSet, *route.AggregateRoute, error) {
	ps, err := c.loadPoints(key)
	if err != nil {
		return ps, nil, err
	}
	var ar route.AggregateRoute
	if err := c.Store.GetJSON(key, cache.StageRoute, &ar); err != nil {
		if cache.IsMiss(err) {
			return ps, nil, errBlocked{err}
		}
		return ps, nil, err
	}
	return ps, &ar, nil
}

// Run processes every subject, bounded by c.Concurrency, then publishes
// the cross-subject summaries and leaderboards. Subject failures are
// reported, not returned; the error is only for publishing.
func (c *Controller) Run(ctx context.Context, subjects []subject.Subject) (*RunReport, error) {
	clock := c.clock()
	report := &RunReport{
		ID:        uuid.NewString(),
		StartedAt: clock.Now().UTC(),
		Subjects:  make([]SubjectReport, len(subjects)),
	}
	monitoring.Logf("run %s: %d subjects", report.ID, len(subjects))

	var g errgroup.Group
	g.SetLimit(max(1, c.Concurrency))
	for i, s := range subjects {
		g.Go(func() error {
			report.Subjects[i] = c.RunSubject(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	summaries, boards, err := c.PublishLeaderboards(subjects)
	if err != nil {
		return report, err
	}
	report.Summaries, report.Leaderboards = summaries, boards
	report.FinishedAt = clock.Now().UTC()

	computed, failed := report.Counts()
	monitoring.Logf("run %s: %d computed, %d failed, %d summaries in %s",
		report.ID, computed, failed, len(summaries), report.FinishedAt.Sub(report.StartedAt))

	if c.Archiver != nil {
		run := db.Run{
			ID:         report.ID,
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Subjects:   len(subjects),
			Computed:   computed,
			Failed:     failed,
		}
		if err := c.Archiver.RecordRun(ctx, run, summaries, boards); err != nil {
			return report, fmt.Errorf("archive run %s: %w", report.ID, err)
		}
	}
	return report, nil
}

// PublishLeaderboards gathers every cached summary in subjects order and
// writes the summaries and leaderboards documents.
func (c *Controller) PublishLeaderboards(subjects []subject.Subject) ([]stats.Summary, []stats.Leaderboard, error) {
	summaries := make([]stats.Summary, 0, len(subjects))
	for _, s := range subjects {
		var sum stats.Summary
		err := c.Store.GetJSON(s.Key(), cache.StageSummary, &sum)
		if cache.IsMiss(err) {
			if c.Store.Exists(s.Key(), cache.StageSummary) {
				monitoring.Stage(s.Key(), string(cache.StageSummary)).Printf("left out of leaderboards: %v", err)
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		summaries = append(summaries, sum)
	}

	boards := stats.Leaderboards(summaries, c.LeaderboardSize)
	if err := c.Store.PutShared(cache.SummariesDoc, summaries); err != nil {
		return nil, nil, err
	}
	if err := c.Store.PutShared(cache.LeaderboardsDoc, boards); err != nil {
		return nil, nil, err
	}
	return summaries, boards, nil
}

// Reset removes key's entry for stage and every later stage.
func (c *Controller) Reset(key string, stage cache.Stage) error {
	if err := c.Store.Invalidate(key, stage); err != nil {
		return err
	}
	monitoring.Stage(key, string(stage)).Printf("reset")
	return nil
}

// ClearInvalid removes route entries that do not decode, are inconsistent
// or hold no trips, together with their downstream entries, so the next
// run retries them. It returns the keys it cleared.
func (c *Controller) ClearInvalid(subjects []subject.Subject) ([]string, error) {
	var cleared []string
	for _, s := range subjects {
		key := s.Key()
		if !c.Store.Exists(key, cache.StageRoute) {
			continue
		}

		var ar route.AggregateRoute
		var reason string
		err := c.Store.GetJSON(key, cache.StageRoute, &ar)
		if cache.IsMiss(err) {
			reason = err.Error()
		} else if err != nil {
			return cleared, err
		} else if verr := ar.Validate(); verr != nil {
			reason = verr.Error()
		} else if len(ar.Trips) == 0 {
			reason = "no trips"
		} else {
			continue
		}

		if err := c.Store.Invalidate(key, cache.StageRoute); err != nil {
			return cleared, err
		}
		monitoring.Stage(key, string(cache.StageRoute)).Printf("cleared invalid entry: %s", reason)
		cleared = append(cleared, key)
	}
	return cleared, nil
}

