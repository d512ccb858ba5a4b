// Package report assembles cached summaries and leaderboards into the
// published views: a JSON payload per subject and an HTML leaderboard page.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/stats"
	"github.com/banshee-data/roadtrip/internal/subject"
)

const assetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoLeaderboards is returned when there is nothing to render.
var ErrNoLeaderboards = errors.New("no leaderboards to render")

// Payload is everything published for one subject.
type Payload struct {
	Subject  subject.Subject `json:"subject"`
	Summary  stats.Summary   `json:"summary"`
	Artifact string          `json:"artifact,omitempty"`
}

// Payloads returns a payload for every subject with a cached summary, in
// subjects order. A summary only exists for subjects whose route produced
// at least one trip.
func Payloads(store *cache.Store, subjects []subject.Subject) ([]Payload, error) {
	out := make([]Payload, 0, len(subjects))
	for _, s := range subjects {
		p, err := PayloadFor(store, s)
		if cache.IsMiss(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// PayloadFor returns the payload for s, or a *cache.Miss if s has no
// cached summary.
func PayloadFor(store *cache.Store, s subject.Subject) (Payload, error) {
	key := s.Key()
	var sum stats.Summary
	if err := store.GetJSON(key, cache.StageSummary, &sum); err != nil {
		return Payload{}, err
	}
	p := Payload{Subject: s, Summary: sum}
	if store.Exists(key, cache.StageArtifact) {
		path, err := store.Path(key, cache.StageArtifact)
		if err != nil {
			return Payload{}, err
		}
		p.Artifact = path
	}
	return p, nil
}

// RenderLeaderboards writes an HTML page with one bar chart per leaderboard.
func RenderLeaderboards(w io.Writer, boards []stats.Leaderboard) error {
	if len(boards) == 0 {
		return ErrNoLeaderboards
	}

	page := components.NewPage()
	page.SetAssetsHost(assetsHost)
	page.SetPageTitle("Road trip leaderboards")
	for _, b := range boards {
		page.AddCharts(leaderboardChart(b))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render leaderboards: %w", err)
	}
	return nil
}

func leaderboardChart(b stats.Leaderboard) *charts.Bar {
	names := make([]string, len(b.Entries))
	values := make([]opts.BarData, len(b.Entries))
	for i, e := range b.Entries {
		names[i] = e.Name
		values[i] = opts.BarData{Value: e.Value}
	}

	subtitle := "highest first"
	if b.Direction == stats.Ascending {
		subtitle = "lowest first"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: b.Label, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30}}),
	)
	bar.SetXAxis(names).
		AddSeries(b.Metric, values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
