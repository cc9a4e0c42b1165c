// Package sample turns a stream of vector observations into a statistical
// view: the mean, the per-axis variance and how many observations backed it.
package sample

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/speedcurrent/internal/vector"
)

// MinCount is the smallest sample count that yields a usable variance.
const MinCount = 2

// PolarSample is a statistical snapshot of a vector signal.
type PolarSample struct {
	Mean     vector.Vector2 `json:"mean"`
	Variance [2]float64     `json:"variance"`
	N        int            `json:"n"`
}

// Usable reports whether the snapshot has enough observations behind it.
func (p PolarSample) Usable() bool {
	return p.N >= MinCount
}

// Polar returns the mean in magnitude/angle form.
func (p PolarSample) Polar() vector.Polar {
	return vector.ToPolar(p.Mean)
}

type entry struct {
	at time.Time
	v  vector.Vector2
}

// Stat keeps the observations of the last Window (and at most MaxLen of
// them) and summarises them on demand.
type Stat struct {
	Window  time.Duration
	MaxLen  int
	entries []entry
}

// NewStat returns a Stat over the given window. maxLen <= 0 means no cap
// beyond the window.
func NewStat(window time.Duration, maxLen int) *Stat {
	return &Stat{Window: window, MaxLen: maxLen}
}

// Add records v observed at now and drops entries that fell out of the
// window. Non-finite values are skipped.
func (s *Stat) Add(now time.Time, v vector.Vector2) {
	if !v.IsFinite() {
		return
	}
	s.entries = append(s.entries, entry{at: now, v: v})
	s.prune(now)
}

// Snapshot summarises the observations currently in the window. With fewer
// than MinCount entries the variance is left at zero and the snapshot is not
// usable.
func (s *Stat) Snapshot() PolarSample {
	n := len(s.entries)
	if n == 0 {
		return PolarSample{}
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, e := range s.entries {
		xs[i] = e.v.X
		ys[i] = e.v.Y
	}
	if n < MinCount {
		return PolarSample{Mean: vector.Vector2{X: xs[0], Y: ys[0]}, N: n}
	}
	mx, vx := stat.MeanVariance(xs, nil)
	my, vy := stat.MeanVariance(ys, nil)
	return PolarSample{
		Mean:     vector.Vector2{X: mx, Y: my},
		Variance: [2]float64{vx, vy},
		N:        n,
	}
}

// Len returns the number of observations in the window.
func (s *Stat) Len() int {
	return len(s.entries)
}

// Reset empties the window.
func (s *Stat) Reset() {
	s.entries = s.entries[:0]
}

func (s *Stat) prune(now time.Time) {
	drop := 0
	if s.Window > 0 {
		cutoff := now.Add(-s.Window)
		for drop < len(s.entries) && s.entries[drop].at.Before(cutoff) {
			drop++
		}
	}
	if s.MaxLen > 0 && len(s.entries)-drop > s.MaxLen {
		drop = len(s.entries) - s.MaxLen
	}
	if drop > 0 {
		s.entries = append(s.entries[:0], s.entries[drop:]...)
	}
}
