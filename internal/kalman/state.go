// Package kalman implements the two-state linear filter used by the
// correction grid and the output smoothers. The model is deliberately narrow:
// identity transition, identity observation, diagonal process noise Q = q·I
// and an observation covariance supplied on every update.
package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/speedcurrent/internal/vector"
)

// MinDeterminant floors |det(P+R)| before inversion so that a degenerate
// innovation covariance regularises instead of failing.
const MinDeterminant = 1e-12

// State is the posterior of one filter: mean, covariance and the number of
// updates folded in so far. Index never decreases and doubles as the cell's
// confidence and age.
type State struct {
	Mean       vector.Vector2
	Covariance vector.Matrix2
	Index      int
}

// NewState returns a prior with the given mean and covariance and no
// updates applied.
func NewState(mean vector.Vector2, cov vector.Matrix2) *State {
	return &State{Mean: mean, Covariance: cov}
}

// Trace returns Cxx + Cyy.
func (s *State) Trace() float64 {
	if s == nil {
		return 0
	}
	return s.Covariance.Trace()
}

// Learned reports whether at least one observation has been folded in.
func (s *State) Learned() bool {
	return s != nil && s.Index > 0
}

// Clone returns a deep copy; nil stays nil.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Update folds observation z with covariance r into prior and returns the
// posterior. A nil prior starts the filter at z with covariance r. The prior
// is never modified.
func Update(prior *State, z vector.Vector2, r vector.Matrix2, q float64) *State {
	if prior == nil {
		return &State{Mean: z, Covariance: r, Index: 1}
	}

	// Predict: identity transition, so only the covariance grows.
	p := mat.NewDense(2, 2, prior.Covariance.Plus(vector.Diag(q, q)).Slice())

	// Innovation covariance S = H·P·Hᵀ + R with H = I.
	var s mat.Dense
	s.Add(p, mat.NewDense(2, 2, r.Slice()))

	var k mat.Dense
	k.Mul(p, invert2(&s))

	innovation := mat.NewVecDense(2, []float64{z.X - prior.Mean.X, z.Y - prior.Mean.Y})
	var step mat.VecDense
	step.MulVec(&k, innovation)

	// P' = (I - K)·P
	var ikh, post mat.Dense
	ikh.Sub(eye2(), &k)
	post.Mul(&ikh, p)

	return &State{
		Mean: vector.Vector2{
			X: prior.Mean.X + step.AtVec(0),
			Y: prior.Mean.Y + step.AtVec(1),
		},
		Covariance: symmetrise(&post),
		Index:      prior.Index + 1,
	}
}

// invert2 inverts a 2×2 matrix through its adjugate, flooring |det| at
// MinDeterminant while keeping its sign.
func invert2(m mat.Matrix) *mat.Dense {
	a, b := m.At(0, 0), m.At(0, 1)
	c, d := m.At(1, 0), m.At(1, 1)
	det := a*d - b*c
	if math.Abs(det) < MinDeterminant {
		if det < 0 {
			det = -MinDeterminant
		} else {
			det = MinDeterminant
		}
	}
	inv := mat.NewDense(2, 2, []float64{d, -b, -c, a})
	inv.Scale(1/det, inv)
	return inv
}

func eye2() *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, 0, 0, 1})
}

// symmetrise averages the off-diagonal terms, which drift apart by rounding
// when R is dense.
func symmetrise(m mat.Matrix) vector.Matrix2 {
	off := (m.At(0, 1) + m.At(1, 0)) / 2
	return vector.Matrix2{
		{m.At(0, 0), off},
		{off, m.At(1, 1)},
	}
}
