// Package units provides the unit names and conversions shared by the
// configuration, the NMEA codec and the reporting API. Everything inside the
// estimator is SI: m/s and radians.
package units

import "math"

// Speed unit constants
const (
	MPS   = "mps"
	Knots = "knots"
	KMPH  = "kmph"
	KPH   = "kph"
)

// KnotsPerMPS is the number of knots in one metre per second.
const KnotsPerMPS = 1.94384

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, Knots, KMPH, KPH}

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
	return "mps, knots, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case Knots:
		return ToKnots(speedMPS)
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in the given units back to meters per second.
func ToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case Knots:
		return FromKnots(speed)
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}

// FromKnots converts knots to m/s.
func FromKnots(kn float64) float64 { return kn / KnotsPerMPS }

// ToKnots converts m/s to knots.
func ToKnots(mps float64) float64 { return mps * KnotsPerMPS }

// FromDegrees converts degrees to radians.
func FromDegrees(deg float64) float64 { return deg * math.Pi / 180 }

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 { return rad * 180 / math.Pi }
