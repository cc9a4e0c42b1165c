// Package stability decides whether a signal has been steady long enough to
// trust observations taken while it holds. It tracks a leaky running min/max:
// a bound pushed outward catches up quickly, a bound left behind relaxes
// slowly toward the signal, and the distance between them is the range.
package stability

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/speedcurrent/internal/vector"
)

// Config configures a Gate.
type Config struct {
	Tau        time.Duration // release toward the signal
	CatchupTau time.Duration // expansion when the signal passes a bound
	IsAngle    bool
	Period     float64 // wrap period for angular signals, usually 2π
	InitialMin float64
	InitialMax float64
}

// Validate checks the time constants and the period.
func (c Config) Validate() error {
	if c.Tau <= 0 {
		return fmt.Errorf("tau must be positive, got %v", c.Tau)
	}
	if c.CatchupTau <= 0 {
		return fmt.Errorf("catchup tau must be positive, got %v", c.CatchupTau)
	}
	if c.IsAngle && c.Period <= 0 {
		return fmt.Errorf("angular gate needs a positive period, got %g", c.Period)
	}
	return nil
}

// Gate is a leaky min/max tracker. It is not safe for concurrent use; the
// fusion pipeline owns its gates.
type Gate struct {
	cfg        Config
	min, max   float64
	lastUpdate time.Time
}

// NewGate returns a gate whose clock starts at now.
func NewGate(cfg Config, now time.Time) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{cfg: cfg, min: cfg.InitialMin, max: cfg.InitialMax, lastUpdate: now}
	if cfg.IsAngle {
		g.min = vector.WrapPeriod(g.min, cfg.Period)
		g.max = vector.WrapPeriod(g.max, cfg.Period)
	}
	return g, nil
}

// Update moves the bounds toward obs. Non-finite observations and samples
// that are not newer than the previous one are ignored.
func (g *Gate) Update(obs float64, now time.Time) {
	if !vector.IsFinite(obs) {
		return
	}
	dt := now.Sub(g.lastUpdate).Seconds()
	if dt <= 0 {
		return
	}
	g.lastUpdate = now

	slow := alpha(dt, g.cfg.Tau)
	fast := alpha(dt, g.cfg.CatchupTau)

	if !g.cfg.IsAngle {
		if obs < g.min {
			g.min += (obs - g.min) * fast
		} else {
			g.min += (obs - g.min) * slow
		}
		if obs > g.max {
			g.max += (obs - g.max) * fast
		} else {
			g.max += (obs - g.max) * slow
		}
		return
	}

	p := g.cfg.Period
	obs = vector.WrapPeriod(obs, p)
	minDiff := vector.AngleDiff(obs, g.min, p)
	maxDiff := vector.AngleDiff(obs, g.max, p)
	if minDiff < 0 {
		g.min = vector.WrapPeriod(g.min+minDiff*fast, p)
	} else {
		g.min = vector.WrapPeriod(g.min+minDiff*slow, p)
	}
	if maxDiff > 0 {
		g.max = vector.WrapPeriod(g.max+maxDiff*fast, p)
	} else {
		g.max = vector.WrapPeriod(g.max+maxDiff*slow, p)
	}
}

// Range returns max - min, or the shortest arc between them for angles.
func (g *Gate) Range() float64 {
	if !g.cfg.IsAngle {
		return g.max - g.min
	}
	return math.Abs(vector.AngleDiff(g.max, g.min, g.cfg.Period))
}

// Bounds returns the current min and max.
func (g *Gate) Bounds() (min, max float64) {
	return g.min, g.max
}

// Stable reports whether the range is below threshold.
func (g *Gate) Stable(threshold float64) bool {
	return g.Range() < threshold
}

func alpha(dt float64, tau time.Duration) float64 {
	return 1 - math.Exp(-dt/tau.Seconds())
}
