// Package units provides shared constants and validation for length units
// used by grid resolution and neighborhood radius settings.
package units

// Unit constants
const (
	M  = "m"
	KM = "km"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M, KM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, km"
}

// ToMeters converts a length in the given units to meters.
// Projected grid coordinates are always meters.
func ToMeters(length float64, unit string) float64 {
	switch unit {
	case KM:
		return length * 1000
	default:
		return length
	}
}

// FromMeters converts a length in meters to the target units.
func FromMeters(lengthM float64, targetUnits string) float64 {
	switch targetUnits {
	case KM:
		return lengthM / 1000
	default:
		return lengthM
	}
}
