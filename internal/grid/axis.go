package grid

import (
	"fmt"
	"math"
)

// geometryTolerance is the slack allowed when comparing axis parameters and
// checking that a step divides its span.
const geometryTolerance = 1e-9

// Axis is one dimension of a grid: cells are centred at Min, Min+Step, ...,
// Max.
type Axis struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Validate checks that the axis is non-empty and that Step divides the span.
func (a Axis) Validate() error {
	if !(a.Step > 0) {
		return fmt.Errorf("axis step must be positive, got %g", a.Step)
	}
	if !(a.Max > a.Min) {
		return fmt.Errorf("axis max %g must exceed min %g", a.Max, a.Min)
	}
	n := (a.Max - a.Min) / a.Step
	if math.Abs(n-math.Round(n)) > geometryTolerance*math.Max(1, n) {
		return fmt.Errorf("axis step %g does not divide span [%g, %g]", a.Step, a.Min, a.Max)
	}
	return nil
}

// Len returns the number of cells along the axis.
func (a Axis) Len() int {
	return int(math.Round((a.Max-a.Min)/a.Step)) + 1
}

// Center returns the value at the centre of cell i.
func (a Axis) Center(i int) float64 {
	return a.Min + float64(i)*a.Step
}

// Clamp limits v to [Min, Max]. NaN clamps to Min.
func (a Axis) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < a.Min {
		return a.Min
	}
	if v > a.Max {
		return a.Max
	}
	return v
}

// Fraction returns the fractional cell index of v after clamping.
func (a Axis) Fraction(v float64) float64 {
	return (a.Clamp(v) - a.Min) / a.Step
}

// Index returns the nearest cell to v, always within [0, Len()-1].
func (a Axis) Index(v float64) int {
	i := int(math.Round(a.Fraction(v)))
	if i < 0 {
		return 0
	}
	if last := a.Len() - 1; i > last {
		return last
	}
	return i
}

// Contains reports whether v lies within [Min, Max].
func (a Axis) Contains(v float64) bool {
	return v >= a.Min-geometryTolerance && v <= a.Max+geometryTolerance
}

// Equal reports whether two axes describe the same cells.
func (a Axis) Equal(b Axis) bool {
	return nearlyEqual(a.Min, b.Min) && nearlyEqual(a.Max, b.Max) && nearlyEqual(a.Step, b.Step)
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= geometryTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
