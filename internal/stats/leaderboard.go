package stats

import (
	"fmt"
	"sort"
)

// Direction is the order in which a metric's best values rank.
type Direction string

const (
	Descending Direction = "desc"
	Ascending  Direction = "asc"
)

// Metric is a rankable summary field.
type Metric struct {
	Name      string
	Label     string
	Direction Direction
	Value     func(Summary) float64
}

// Metrics lists every ranked metric in report order.
var Metrics = []Metric{
	{"total_miles", "Total miles", Descending, func(s Summary) float64 { return s.TotalMiles }},
	{"num_locations", "Locations", Descending, func(s Summary) float64 { return float64(s.NumLocations) }},
	{"num_stops", "Stops", Descending, func(s Summary) float64 { return float64(s.NumStops) }},
	{"num_trips", "Trips", Descending, func(s Summary) float64 { return float64(s.NumTrips) }},
	{"driving_hours", "Driving hours", Descending, func(s Summary) float64 { return s.DrivingHours }},
	{"days", "Days on the road", Descending, func(s Summary) float64 { return s.Days }},
	{"stops_per_day", "Stops per day", Descending, func(s Summary) float64 { return s.StopsPerDay }},
	{"pee_breaks", "Pee breaks", Descending, func(s Summary) float64 { return float64(s.PeeBreaks) }},
	{"longest_leg_miles", "Longest leg (mi)", Descending, func(s Summary) float64 { return s.LongestLegMiles }},
	{"median_leg_miles", "Median leg (mi)", Descending, func(s Summary) float64 { return s.MedianLegMiles }},
	{"average_speed_mph", "Average speed (mph)", Descending, func(s Summary) float64 { return s.AverageSpeedMPH }},
	{"sparsity", "Sparsity", Descending, func(s Summary) float64 { return s.Sparsity }},
	{"density", "Density", Descending, func(s Summary) float64 { return s.Density }},
	{"furthest_stop_miles", "Most isolated stop (mi)", Descending, func(s Summary) float64 { return s.FurthestStopMiles }},
	{"northernmost_lat", "Northernmost", Descending, func(s Summary) float64 { return s.NorthernmostLat }},
	{"southernmost_lat", "Southernmost", Ascending, func(s Summary) float64 { return s.SouthernmostLat }},
}

// MetricByName returns the registered metric called name.
func MetricByName(name string) (Metric, error) {
	for _, m := range Metrics {
		if m.Name == name {
			return m, nil
		}
	}
	return Metric{}, fmt.Errorf("unknown metric %q", name)
}

// Entry is one ranked subject.
type Entry struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Leaderboard is the top subjects for one metric, best first.
type Leaderboard struct {
	Metric    string    `json:"metric"`
	Label     string    `json:"label"`
	Direction Direction `json:"direction"`
	Entries   []Entry   `json:"entries"`
}

// Rank orders summaries by m, best first, keeping input order among equal
// values, and keeps the first n. n <= 0 keeps every subject.
func Rank(summaries []Summary, m Metric, n int) Leaderboard {
	entries := make([]Entry, len(summaries))
	for i, s := range summaries {
		entries[i] = Entry{Key: s.Key, Name: s.Name, Value: m.Value(s)}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if m.Direction == Ascending {
			return entries[i].Value < entries[j].Value
		}
		return entries[i].Value > entries[j].Value
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return Leaderboard{Metric: m.Name, Label: m.Label, Direction: m.Direction, Entries: entries}
}

// Leaderboards ranks summaries by every metric in Metrics.
func Leaderboards(summaries []Summary, n int) []Leaderboard {
	boards := make([]Leaderboard, len(Metrics))
	for i, m := range Metrics {
		boards[i] = Rank(summaries, m, n)
	}
	return boards
}
