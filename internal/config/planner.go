// Package config loads the planner settings and the restaurant catalog.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical planner defaults file.
const DefaultConfigPath = "config/planner.defaults.json"

// maxFileSize bounds config and catalog files.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults used when a field is omitted.
const (
	DefaultCacheDir             = ".roadtrip_cache"
	DefaultRoutingLimit         = 100
	DefaultDrivingHoursPerDay   = 12.0
	DefaultLeaderboardSize      = 10
	DefaultSubjectConcurrency   = 4
	DefaultPartitionConcurrency = 2
	DefaultOverpassURL          = "https://overpass-api.de/api/interpreter"
	DefaultOSRMURL              = "https://router.project-osrm.org"
	DefaultRequestTimeout       = 120 * time.Second
	DefaultKMeansSeed           = uint64(0x526f616474726970)
	DefaultKMeansIterations     = 50
)

// DefaultAreas are searched by the simple point query.
var DefaultAreas = []string{"United States", "Canada", "Mexico"}

// ContiguousStates are the sub-regions queried for subjects whose area
// query would otherwise include Alaska, Hawaii and the territories.
var ContiguousStates = []string{
	"Alabama", "Arizona", "Arkansas", "California", "Colorado", "Connecticut",
	"Delaware", "District of Columbia", "Florida", "Georgia", "Idaho", "Illinois",
	"Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana", "Maine", "Maryland",
	"Massachusetts", "Michigan", "Minnesota", "Mississippi", "Missouri", "Montana",
	"Nebraska", "Nevada", "New Hampshire", "New Jersey", "New Mexico", "New York",
	"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon", "Pennsylvania",
	"Rhode Island", "South Carolina", "South Dakota", "Tennessee", "Texas", "Utah",
	"Vermont", "Virginia", "Washington", "West Virginia", "Wisconsin", "Wyoming",
}

// PlannerConfig holds the planner settings. Omitted fields fall back to
// the defaults above through the Get* accessors.
type PlannerConfig struct {
	CacheDir           *string  `json:"cache_dir,omitempty"`
	RoutingLimit       *int     `json:"routing_limit,omitempty"`
	DrivingHoursPerDay *float64 `json:"driving_hours_per_day,omitempty"`
	LeaderboardSize    *int     `json:"leaderboard_size,omitempty"`

	SubjectConcurrency   *int `json:"subject_concurrency,omitempty"`
	PartitionConcurrency *int `json:"partition_concurrency,omitempty"`

	// Backends
	OverpassURL      *string  `json:"overpass_url,omitempty"`
	OSRMURL          *string  `json:"osrm_url,omitempty"`
	RequestTimeout   *string  `json:"request_timeout,omitempty"` // duration string like "120s"
	Areas            []string `json:"areas,omitempty"`
	IslandSubregions []string `json:"island_subregions,omitempty"`

	// Partitioner
	KMeansSeed       *uint64 `json:"kmeans_seed,omitempty"`
	KMeansIterations *int    `json:"kmeans_iterations,omitempty"`
}

// LoadPlannerConfig loads a PlannerConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	data, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &PlannerConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readJSONFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks that the configured values are usable.
func (c *PlannerConfig) Validate() error {
	positive := map[string]*int{
		"routing_limit":         c.RoutingLimit,
		"leaderboard_size":      c.LeaderboardSize,
		"subject_concurrency":   c.SubjectConcurrency,
		"partition_concurrency": c.PartitionConcurrency,
		"kmeans_iterations":     c.KMeansIterations,
	}
	for name, v := range positive {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if c.DrivingHoursPerDay != nil {
		if *c.DrivingHoursPerDay <= 0 || *c.DrivingHoursPerDay > 24 {
			return fmt.Errorf("driving_hours_per_day must be in (0, 24], got %f", *c.DrivingHoursPerDay)
		}
	}

	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		d, err := time.ParseDuration(*c.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("request_timeout must not be negative, got %s", d)
		}
	}

	if c.CacheDir != nil && *c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	return nil
}

// GetCacheDir returns the cache root.
func (c *PlannerConfig) GetCacheDir() string {
	if c.CacheDir == nil {
		return DefaultCacheDir
	}
	return *c.CacheDir
}

// GetRoutingLimit returns the most points the routing backend accepts per request.
func (c *PlannerConfig) GetRoutingLimit() int {
	if c.RoutingLimit == nil {
		return DefaultRoutingLimit
	}
	return *c.RoutingLimit
}

// GetDrivingHoursPerDay returns the driving_hours_per_day value or the default.
func (c *PlannerConfig) GetDrivingHoursPerDay() float64 {
	if c.DrivingHoursPerDay == nil {
		return DefaultDrivingHoursPerDay
	}
	return *c.DrivingHoursPerDay
}

// GetLeaderboardSize returns the leaderboard_size value or the default.
func (c *PlannerConfig) GetLeaderboardSize() int {
	if c.LeaderboardSize == nil {
		return DefaultLeaderboardSize
	}
	return *c.LeaderboardSize
}

// GetSubjectConcurrency returns how many subjects run at once.
func (c *PlannerConfig) GetSubjectConcurrency() int {
	if c.SubjectConcurrency == nil {
		return DefaultSubjectConcurrency
	}
	return *c.SubjectConcurrency
}

// GetPartitionConcurrency returns how many partitions of one subject are
// routed at once.
func (c *PlannerConfig) GetPartitionConcurrency() int {
	if c.PartitionConcurrency == nil {
		return DefaultPartitionConcurrency
	}
	return *c.PartitionConcurrency
}

// GetOverpassURL returns the overpass_url value or the default.
func (c *PlannerConfig) GetOverpassURL() string {
	if c.OverpassURL == nil || *c.OverpassURL == "" {
		return DefaultOverpassURL
	}
	return *c.OverpassURL
}

// GetOSRMURL returns the osrm_url value or the default.
func (c *PlannerConfig) GetOSRMURL() string {
	if c.OSRMURL == nil || *c.OSRMURL == "" {
		return DefaultOSRMURL
	}
	return *c.OSRMURL
}

// GetRequestTimeout parses and returns the RequestTimeout as a time.Duration.
func (c *PlannerConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return DefaultRequestTimeout
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return DefaultRequestTimeout // default on parse error
	}
	return d
}

// GetAreas returns the areas searched by the simple point query.
func (c *PlannerConfig) GetAreas() []string {
	if len(c.Areas) == 0 {
		return DefaultAreas
	}
	return c.Areas
}

// GetIslandSubregions returns the sub-regions queried for subjects with islands.
func (c *PlannerConfig) GetIslandSubregions() []string {
	if len(c.IslandSubregions) == 0 {
		return ContiguousStates
	}
	return c.IslandSubregions
}

// GetKMeansSeed returns the kmeans_seed value or the default.
func (c *PlannerConfig) GetKMeansSeed() uint64 {
	if c.KMeansSeed == nil {
		return DefaultKMeansSeed
	}
	return *c.KMeansSeed
}

// GetKMeansIterations returns the kmeans_iterations value or the default.
func (c *PlannerConfig) GetKMeansIterations() int {
	if c.KMeansIterations == nil {
		return DefaultKMeansIterations
	}
	return *c.KMeansIterations
}
