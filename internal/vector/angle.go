package vector

import "math"

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// WrapPeriod maps a into [0, period).
func WrapPeriod(a, period float64) float64 {
	a = math.Mod(a, period)
	if a < 0 {
		a += period
	}
	// math.Mod can return period itself for tiny negative inputs after the add.
	if a >= period {
		a -= period
	}
	return a
}

// AngleDiff returns the signed shortest difference a - b within
// [-period/2, period/2].
func AngleDiff(a, b, period float64) float64 {
	d := math.Mod(a-b, period)
	half := period / 2
	if d > half {
		d -= period
	} else if d < -half {
		d += period
	}
	return d
}

// WrapPi maps a into (-π, π].
func WrapPi(a float64) float64 {
	a = WrapPeriod(a+math.Pi, TwoPi) - math.Pi
	if a == -math.Pi {
		return math.Pi
	}
	return a
}
