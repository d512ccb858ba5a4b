package units

import (
	"math"
	"testing"
)

func TestMetersToMiles(t *testing.T) {
	tests := []struct {
		meters float64
		miles  float64
	}{
		{0, 0},
		{1609.344, 1},
		{4500, 2.7961},
		{100000, 62.1371},
	}

	for _, tt := range tests {
		if got := MetersToMiles(tt.meters); math.Abs(got-tt.miles) > 1e-4 {
			t.Errorf("MetersToMiles(%v) = %v, want %v", tt.meters, got, tt.miles)
		}
	}
}

func TestSecondsToHours(t *testing.T) {
	if got := SecondsToHours(3600); got != 1 {
		t.Errorf("SecondsToHours(3600) = %v, want 1", got)
	}
	if got := SecondsToHours(5400); got != 1.5 {
		t.Errorf("SecondsToHours(5400) = %v, want 1.5", got)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.79617, 2.8},
		{0.25, 0.25},
		{1.005, 1},
		{-3.14159, -3.14},
		{12.345678, 12.35},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
