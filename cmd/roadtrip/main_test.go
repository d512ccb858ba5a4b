package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/config"
	"github.com/banshee-data/roadtrip/internal/httputil"
	"github.com/banshee-data/roadtrip/internal/overpass"
	"github.com/banshee-data/roadtrip/internal/subject"
	"github.com/banshee-data/roadtrip/internal/testutil"
)

func TestParseReset(t *testing.T) {
	tests := []struct {
		in        string
		wantKey   string
		wantStage cache.Stage
		wantErr   bool
	}{
		{"taco-bell:route", "taco-bell", cache.StageRoute, false},
		{"wingstop:points", "wingstop", cache.StagePoints, false},
		{"ben--jerrys:summary", "ben--jerrys", cache.StageSummary, false},
		{"taco-bell", "", "", true},
		{":route", "", "", true},
		{"taco-bell:tiles", "", "", true},
		{"../etc:route", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			key, stage, err := parseReset(tt.in)
			if tt.wantErr {
				testutil.AssertError(t, err)
				return
			}
			testutil.AssertNoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantStage, stage)
		})
	}
}

func TestSelectSubjects(t *testing.T) {
	catalog := []subject.Subject{{Name: "Taco Bell"}, {Name: "Wingstop"}, {Name: "Sonic"}}

	all, err := selectSubjects(catalog, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := selectSubjects(catalog, "sonic, taco-bell")
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "Taco Bell", some[0].Name, "catalog order is kept")
	assert.Equal(t, "Sonic", some[1].Name)

	_, err = selectSubjects(catalog, "sbarro")
	assert.ErrorContains(t, err, "sbarro")
}

func TestNewControllerUsesConfig(t *testing.T) {
	limit, conc := 25, 3
	cfg := &config.PlannerConfig{RoutingLimit: &limit, SubjectConcurrency: &conc}

	ctrl := newController(cfg, cache.New(t.TempDir(), nil))
	assert.Equal(t, 3, ctrl.Concurrency)
	assert.Equal(t, config.DefaultDrivingHoursPerDay, ctrl.DrivingHoursPerDay)
	assert.Equal(t, config.DefaultLeaderboardSize, ctrl.LeaderboardSize)
	assert.Nil(t, ctrl.Archiver)
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultConfigPath, *configPath)
	assert.Equal(t, config.DefaultCatalogPath, *catalogPath)
	assert.False(t, *clearInvalid)
	assert.Empty(t, *listen)
}

func TestOverpassClientOutlivesQueryTimeout(t *testing.T) {
	ctrl := newController(&config.PlannerConfig{}, cache.New(t.TempDir(), nil))

	fetcher, ok := ctrl.Fetcher.(*overpass.Client)
	require.True(t, ok)
	client, ok := fetcher.HTTP.(*httputil.StandardClient)
	require.True(t, ok)
	assert.Greater(t, client.Timeout, fetcher.Timeout, "the server-side timeout must fire first")
	assert.Equal(t, fetcher.HTTPTimeout(), client.Timeout)
}

func TestOverpassTimeout(t *testing.T) {
	c := overpass.New("", nil)
	tests := []struct {
		name    string
		request time.Duration
		want    time.Duration
	}{
		{"shorter than query", 120 * time.Second, c.Timeout + overpass.ResponseGrace},
		{"longer than query", 10 * time.Minute, 10 * time.Minute},
		{"unbounded", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overpassTimeout(tt.request, c))
		})
	}
}
