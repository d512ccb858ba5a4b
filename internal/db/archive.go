package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/roadtrip/internal/stats"
)

// ErrNoRuns is returned when the archive holds no runs.
var ErrNoRuns = errors.New("no archived runs")

// Run describes one pipeline run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Subjects   int       `json:"subjects"`
	Computed   int       `json:"computed"`
	Failed     int       `json:"failed"`
}

const summaryColumns = `subject_key, name, computed_unix_nanos,
	num_locations, num_partitions, num_failures, num_trips, num_stops,
	total_miles, driving_hours, days, stops_per_day, pee_breaks,
	longest_leg_miles, median_leg_miles, average_leg_miles, average_speed_mph,
	sparsity, density, furthest_stop_miles, northernmost_lat, southernmost_lat`

// RecordRun stores a run with its summaries and leaderboards in one
// transaction.
func (db *DB) RecordRun(ctx context.Context, run Run, summaries []stats.Summary, boards []stats.Leaderboard) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix_nanos, finished_unix_nanos, subjects, computed, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Subjects, run.Computed, run.Failed,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, s := range summaries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summaries (run_id, `+summaryColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, s.Key, s.Name, s.ComputedAt.UnixNano(),
			s.NumLocations, s.NumPartitions, s.NumFailures, s.NumTrips, s.NumStops,
			s.TotalMiles, s.DrivingHours, s.Days, s.StopsPerDay, s.PeeBreaks,
			s.LongestLegMiles, s.MedianLegMiles, s.AverageLegMiles, s.AverageSpeedMPH,
			s.Sparsity, s.Density, s.FurthestStopMiles, s.NorthernmostLat, s.SouthernmostLat,
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", s.Key, err)
		}
	}

	for _, b := range boards {
		for i, e := range b.Entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO leaderboard_entries (run_id, metric, position, subject_key, value)
				 VALUES (?, ?, ?, ?, ?)`,
				run.ID, b.Metric, i+1, e.Key, e.Value,
			); err != nil {
				return fmt.Errorf("insert leaderboard %s: %w", b.Metric, err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns archived runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, started_unix_nanos, finished_unix_nanos, subjects, computed, failed
		 FROM runs ORDER BY started_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Subjects, &r.Computed, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRunID returns the ID of the most recently started run.
func (db *DB) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY started_unix_nanos DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	return id, err
}

// Summaries returns the summaries archived for runID in subject order of
// insertion.
func (db *DB) Summaries(ctx context.Context, runID string) ([]stats.Summary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Summary
	for rows.Next() {
		var s stats.Summary
		var computed int64
		if err := rows.Scan(&s.Key, &s.Name, &computed,
			&s.NumLocations, &s.NumPartitions, &s.NumFailures, &s.NumTrips, &s.NumStops,
			&s.TotalMiles, &s.DrivingHours, &s.Days, &s.StopsPerDay, &s.PeeBreaks,
			&s.LongestLegMiles, &s.MedianLegMiles, &s.AverageLegMiles, &s.AverageSpeedMPH,
			&s.Sparsity, &s.Density, &s.FurthestStopMiles, &s.NorthernmostLat, &s.SouthernmostLat,
		); err != nil {
			return nil, err
		}
		s.ComputedAt = time.Unix(0, computed).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// SubjectHistory returns total miles for key across runs, oldest first.
func (db *DB) SubjectHistory(ctx context.Context, key string) ([]float64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT s.total_miles FROM summaries s JOIN runs r ON r.run_id = s.run_id
		 WHERE s.subject_key = ? ORDER BY r.started_unix_nanos`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var miles []float64
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		miles = append(miles, m)
	}
	return miles, rows.Err()
}
