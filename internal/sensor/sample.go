// Package sensor defines the timestamped samples that arrive from the
// instrument bus and the values the estimator sends back to it.
package sensor

import (
	"fmt"
	"math"
	"time"
)

// Kind names what a sample measures.
type Kind string

// Sample kinds. Values are SI: radians and m/s.
const (
	Heading           Kind = "heading"             // true heading, rad
	Attitude          Kind = "attitude"            // roll/pitch/yaw, rad
	SpeedThroughWater Kind = "speed_through_water" // m/s
	SpeedOverGround   Kind = "speed_over_ground"   // m/s
	CourseOverGround  Kind = "course_over_ground"  // true, rad
	MagneticVariation Kind = "magnetic_variation"  // rad, east positive
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{Heading, Attitude, SpeedThroughWater, SpeedOverGround, CourseOverGround, MagneticVariation}

// HeartbeatKinds are the kinds allowed to drive a fusion cycle.
var HeartbeatKinds = []Kind{Heading, Attitude, SpeedThroughWater, SpeedOverGround}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sample kind %q", s)
}

// IsHeartbeat reports whether k may trigger a cycle.
func IsHeartbeat(k Kind) bool {
	for _, h := range HeartbeatKinds {
		if h == k {
			return true
		}
	}
	return false
}

// Axis is a set of Orientation fields.
type Axis uint8

// Orientation axes.
const (
	AxisRoll Axis = 1 << iota
	AxisPitch
	AxisYaw

	AllAxes = AxisRoll | AxisPitch | AxisYaw
)

// Orientation is the boat attitude in radians. Roll is heel, positive to
// starboard. Axes names the fields a reading carries; zero means all of
// them.
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Axes  Axis    `json:"axes,omitempty"`
}

// Has reports whether o carries axis a.
func (o Orientation) Has(a Axis) bool {
	return o.Axes == 0 || o.Axes&a != 0
}

// Merge returns o with the axes carried by u replaced by u's values.
func (o Orientation) Merge(u Orientation) Orientation {
	if u.Has(AxisRoll) {
		o.Roll = u.Roll
	}
	if u.Has(AxisPitch) {
		o.Pitch = u.Pitch
	}
	if u.Has(AxisYaw) {
		o.Yaw = u.Yaw
	}
	o.Axes = 0
	return o
}

// Sample is one timestamped reading. Scalar kinds use Value; Attitude uses
// Attitude.
type Sample struct {
	Kind      Kind        `json:"kind"`
	Value     float64     `json:"value"`
	Attitude  Orientation `json:"attitude"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// Finite reports whether the sample's payload is a usable number.
func (s Sample) Finite() bool {
	if s.Kind == Attitude {
		a := s.Attitude
		return (!a.Has(AxisRoll) || finite(a.Roll)) &&
			(!a.Has(AxisPitch) || finite(a.Pitch)) &&
			(!a.Has(AxisYaw) || finite(a.Yaw))
	}
	return finite(s.Value)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Current is the water current as the sink receives it.
type Current struct {
	Drift       float64 `json:"drift"`        // m/s
	SetTrue     float64 `json:"set_true"`     // rad
	SetMagnetic float64 `json:"set_magnetic"` // rad, (-π, π]
}

// BoatSpeed is the corrected speed through water and the leeway angle.
type BoatSpeed struct {
	Speed  float64 `json:"speed"`  // m/s
	Leeway float64 `json:"leeway"` // rad, positive to starboard
}
