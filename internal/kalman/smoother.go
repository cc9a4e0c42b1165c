package kalman

import (
	"fmt"

	"github.com/banshee-data/speedcurrent/internal/vector"
)

// Smoother is a Kalman filter over a vector stream with a fixed ratio between
// process and observation noise. A larger stability gives a slower, more
// trusted estimate.
type Smoother struct {
	q     float64
	r     vector.Matrix2
	state *State
}

// NewSmoother returns a smoother with q = 1/stability and R = I.
func NewSmoother(stability float64) (*Smoother, error) {
	if stability <= 0 {
		return nil, fmt.Errorf("smoother stability must be positive, got %g", stability)
	}
	return &Smoother{q: 1 / stability, r: vector.Identity2}, nil
}

// Seed starts the smoother from an explicit prior instead of the first
// observation.
func (s *Smoother) Seed(mean vector.Vector2, cov vector.Matrix2) {
	s.state = NewState(mean, cov)
}

// Update folds z in and returns the new estimate. Non-finite observations are
// ignored.
func (s *Smoother) Update(z vector.Vector2) vector.Vector2 {
	if !z.IsFinite() {
		return s.Estimate()
	}
	s.state = Update(s.state, z, s.r, s.q)
	return s.state.Mean
}

// Estimate returns the current mean, or the zero vector before any update.
func (s *Smoother) Estimate() vector.Vector2 {
	if s.state == nil {
		return vector.Zero
	}
	return s.state.Mean
}

// State returns a copy of the filter state, nil before the first update.
func (s *Smoother) State() *State {
	return s.state.Clone()
}

// Reset drops the filter state.
func (s *Smoother) Reset() {
	s.state = nil
}
