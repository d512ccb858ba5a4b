package pipeline

import (
	"time"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/stats"
)

// Outcome is what happened to one stage of one subject during a run.
type Outcome string

const (
	// Cached means the stage entry already existed and was left alone.
	Cached Outcome = "cached"
	// Computed means the stage ran and its entry was written.
	Computed Outcome = "computed"
	// Blocked means a dependency entry was missing.
	Blocked Outcome = "blocked"
	// Skipped means the subject has nothing to compute at this stage.
	Skipped Outcome = "skipped"
	// Failed means the stage errored and its entry was not written.
	Failed Outcome = "failed"
)

// StageResult records one stage's outcome.
type StageResult struct {
	Stage    cache.Stage   `json:"stage"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SubjectReport lists the stage outcomes for one subject in pipeline order.
type SubjectReport struct {
	Key    string        `json:"key"`
	Name   string        `json:"name"`
	Stages []StageResult `json:"stages"`
}

// Outcome returns the outcome recorded for stage, or "" if none.
func (r SubjectReport) Outcome(stage cache.Stage) Outcome {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Outcome
		}
	}
	return ""
}

// Failed reports whether any stage failed.
func (r SubjectReport) Failed() bool {
	return r.count(Failed) > 0
}

// Computed reports whether any stage was computed.
func (r SubjectReport) Computed() bool {
	return r.count(Computed) > 0
}

func (r SubjectReport) count(o Outcome) int {
	n := 0
	for _, s := range r.Stages {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// RunReport summarizes one pass over the catalog.
type RunReport struct {
	ID           string              `json:"id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Subjects     []SubjectReport     `json:"subjects"`
	Summaries    []stats.Summary     `json:"-"`
	Leaderboards []stats.Leaderboard `json:"-"`
}

// Counts returns how many subjects computed at least one stage and how
// many had a failure.
func (r *RunReport) Counts() (computed, failed int) {
	for _, s := range r.Subjects {
		if s.Computed() {
			computed++
		}
		if s.Failed() {
			failed++
		}
	}
	return computed, failed
}
