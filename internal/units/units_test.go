package units

import (
	"math"
	"testing"
)

func TestToMeters(t *testing.T) {
	tests := []struct {
		name     string
		length   float64
		units    string
		expected float64
	}{
		{"8 km grid", 8, KM, 8000},
		{"meters unchanged", 8000, M, 8000},
		{"unknown units default to m", 12.5, "furlong", 12.5},
		{"zero", 0, KM, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToMeters(tt.length, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ToMeters(%f, %s) = %f, want %f", tt.length, tt.units, result, tt.expected)
			}
		})
	}
}

func TestFromMetersRoundTrip(t *testing.T) {
	for _, u := range ValidUnits {
		got := FromMeters(ToMeters(3.25, u), u)
		if math.Abs(got-3.25) > 1e-12 {
			t.Errorf("round trip through %s = %f", u, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{M, true},
		{KM, true},
		{"mi", false},
		{"", false},
		{"KM", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}
