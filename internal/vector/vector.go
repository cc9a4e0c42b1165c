package vector

import "math"

// Vector2 is a Cartesian 2-D vector. In the ground frame x points north and y
// east, so compass angles convert with the usual cos/sin pair. In the boat
// frame x points forward and y to starboard.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polar is the magnitude/angle view of a Vector2.
type Polar struct {
	Magnitude float64 `json:"speed"`
	Angle     float64 `json:"angle"`
}

// Zero is the zero vector.
var Zero = Vector2{}

// FromPolar converts a magnitude and angle into Cartesian form.
func FromPolar(magnitude, angle float64) Vector2 {
	return Vector2{X: magnitude * math.Cos(angle), Y: magnitude * math.Sin(angle)}
}

// ToPolar converts v into magnitude and angle. The angle lies in (-π, π].
func ToPolar(v Vector2) Polar {
	return Polar{Magnitude: v.Norm(), Angle: math.Atan2(v.Y, v.X)}
}

// Vector returns p in Cartesian form.
func (p Polar) Vector() Vector2 {
	return FromPolar(p.Magnitude, p.Angle)
}

// Add returns a + b.
func Add(a, b Vector2) Vector2 {
	return Vector2{X: a.X + b.X, Y: a.Y + b.Y}
}

// Sub returns a - b.
func Sub(a, b Vector2) Vector2 {
	return Vector2{X: a.X - b.X, Y: a.Y - b.Y}
}

// Scale returns v multiplied by f.
func Scale(v Vector2, f float64) Vector2 {
	return Vector2{X: v.X * f, Y: v.Y * f}
}

// Norm returns the Euclidean length of v.
func (v Vector2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// IsFinite reports whether both components are finite numbers.
func (v Vector2) IsFinite() bool {
	return IsFinite(v.X) && IsFinite(v.Y)
}

// Rotate applies the rotation matrix for -theta:
//
//	x' =  cosθ·x + sinθ·y
//	y' = -sinθ·x + cosθ·y
//
// Rotate(Rotate(v, θ), -θ) returns v.
func Rotate(v Vector2, theta float64) Vector2 {
	c, s := math.Cos(theta), math.Sin(theta)
	return Vector2{
		X: c*v.X + s*v.Y,
		Y: -s*v.X + c*v.Y,
	}
}

// RotateVariance propagates the independent per-axis variances (vx, vy)
// through the same rotation as Rotate and returns the resulting dense
// covariance.
func RotateVariance(variance [2]float64, theta float64) Matrix2 {
	c, s := math.Cos(theta), math.Sin(theta)
	vx, vy := variance[0], variance[1]
	cross := (vx - vy) * c * s
	return Matrix2{
		{vx*c*c + vy*s*s, cross},
		{cross, vx*s*s + vy*c*c},
	}
}

// IsFinite reports whether f is neither NaN nor ±Inf.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
