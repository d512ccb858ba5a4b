// Package units converts routing backend measurements (meters and seconds)
// into the units trip statistics are reported in.
package units

import "math"

const (
	// MetersPerMile is the length of an international mile.
	MetersPerMile = 1609.344
	// SecondsPerHour converts durations reported in seconds.
	SecondsPerHour = 3600.0
)

// MetersToMiles converts a distance in meters to miles.
func MetersToMiles(meters float64) float64 {
	return meters / MetersPerMile
}

// SecondsToHours converts a duration in seconds to hours.
func SecondsToHours(seconds float64) float64 {
	return seconds / SecondsPerHour
}

// Round2 rounds v to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
