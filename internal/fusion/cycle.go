package fusion

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/stability"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// initialGateSpread is the range a new gate starts with, so that a signal has
// to settle before it counts as stable.
const initialGateSpread = math.Pi / 2

// HandleSample records s as the last known value of its stream and, when s
// is the configured heartbeat, runs one cycle. Samples stamped with the
// pipeline's own source id are ignored. It reports whether a cycle ran to
// completion.
func (p *Pipeline) HandleSample(ctx context.Context, s sensor.Sample) bool {
	if s.Source != "" && s.Source == p.cfg.GetSourceID() {
		return false
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = p.clock.Now()
	}

	p.mu.Lock()
	p.record(s)
	if s.Kind != p.cfg.GetHeartbeat() || !p.running {
		p.mu.Unlock()
		return false
	}
	out, ok, saveDue := p.cycle(s.Timestamp)
	p.mu.Unlock()

	if ok && p.sink != nil && (out.BoatSpeed != nil || out.Current != nil) {
		p.sink.Emit(out)
	}
	if saveDue {
		if err := p.Save(ctx); err != nil {
			logf("periodic save failed: %v", err)
		}
	}
	return ok
}

func (p *Pipeline) record(s sensor.Sample) {
	in := &p.inputs
	switch s.Kind {
	case sensor.Heading:
		in.heading = s.Value
	case sensor.Attitude:
		in.attitude = in.attitude.Merge(s.Attitude)
	case sensor.SpeedThroughWater:
		in.stw = s.Value
	case sensor.SpeedOverGround:
		in.sog = s.Value
	case sensor.CourseOverGround:
		in.cog = s.Value
	case sensor.MagneticVariation:
		in.variation = s.Value
	default:
		return
	}
	in.seen[s.Kind] = s.Timestamp
}

// cycle runs one estimation step at now. Callers hold the write lock.
func (p *Pipeline) cycle(now time.Time) (out Output, ok, saveDue bool) {
	in := p.inputs
	heel, speed, heading := in.attitude.Roll, in.stw, in.heading

	switch {
	case !vector.IsFinite(heel):
		logf("heel is not a valid number, skipping cycle")
	case !vector.IsFinite(speed):
		logf("speed is not a valid number, skipping cycle")
	case !vector.IsFinite(heading):
		logf("heading is not a valid number, skipping cycle")
	default:
		ok = true
	}
	if !ok {
		p.state.skipped++
		return Output{}, false, false
	}
	st := &p.state

	// Observations for this cycle. Ground vectors are north/east, boat
	// vectors forward/starboard.
	ground := vector.FromPolar(in.sog, in.cog)
	boat := vector.Vector2{X: speed}
	p.groundStat.Add(now, ground)
	p.boatStat.Add(now, boat)
	p.currentStat.Add(now, st.current)

	// Stability gates.
	p.headingGate = p.gateUpdate(p.headingGate, heading, now)
	p.cogGate = p.gateUpdate(p.cogGate, in.cog, now)
	threshold := p.cfg.StabilityThresholdRadians()
	stable := p.headingGate != nil && p.cogGate != nil &&
		p.headingGate.Stable(threshold) && p.cogGate.Stable(threshold)

	// Learn.
	updated := false
	if p.cfg.GetUpdateCorrectionTable() && stable && speed > 0 {
		updated = p.grid.Update(speed, heel,
			p.groundStat.Snapshot(), p.currentStat.Snapshot(), p.boatStat.Snapshot(), heading)
		if updated {
			st.updates++
			p.markDirty()
		}
	}

	// Correct boat speed.
	correction := p.grid.Query(speed, heel)
	corrected := p.boatSmoother.Update(vector.Add(boat, correction.Vector()))
	boatOverGround := vector.Rotate(corrected, -heading)

	// Estimate current.
	current := p.currentSmoother.Estimate()
	if p.cfg.GetAssumeCurrent() {
		current = p.currentSmoother.Update(vector.Sub(ground, boatOverGround))
	}

	st.at = now
	st.cycles++
	st.stable = stable
	st.updated = updated
	st.ground = ground
	st.boat = boat
	st.correction = correction
	st.corrected = corrected
	st.boatOverGround = boatOverGround
	st.current = current
	st.residual = vector.Sub(vector.Sub(ground, boatOverGround), current)

	out.Timestamp = now
	out.Heading = heading
	if p.cfg.GetEstimateBoatSpeed() {
		pol := vector.ToPolar(corrected)
		out.BoatSpeed = &sensor.BoatSpeed{Speed: pol.Magnitude, Leeway: pol.Angle}
	}
	if p.cfg.GetEstimateCurrent() {
		c := currentOutput(current, in.variation)
		out.Current = &c
	}

	if p.cfg.GetUpdateCorrectionTable() && p.store != nil {
		if p.lastSave.IsZero() {
			p.lastSave = now
		} else if now.Sub(p.lastSave) >= p.cfg.GetSaveInterval() {
			p.lastSave = now
			saveDue = p.dirty
		}
	}
	return out, true, saveDue
}

// gateUpdate creates the gate on first use, centred on obs, and feeds it.
func (p *Pipeline) gateUpdate(g *stability.Gate, obs float64, now time.Time) *stability.Gate {
	if !vector.IsFinite(obs) {
		return g
	}
	if g == nil {
		ng, err := stability.NewGate(stability.Config{
			Tau:        p.cfg.GetGateTau(),
			CatchupTau: p.cfg.GetGateCatchupTau(),
			IsAngle:    true,
			Period:     vector.TwoPi,
			InitialMin: obs - initialGateSpread/2,
			InitialMax: obs + initialGateSpread/2,
		}, now)
		if err != nil {
			logf("stability gate: %v", err)
			return nil
		}
		return ng
	}
	g.Update(obs, now)
	return g
}

// currentOutput turns the ground-frame current vector into drift and set.
func currentOutput(current vector.Vector2, variation float64) sensor.Current {
	pol := vector.ToPolar(current)
	setTrue := vector.WrapPeriod(pol.Angle, vector.TwoPi)
	return sensor.Current{
		Drift:       pol.Magnitude,
		SetTrue:     setTrue,
		SetMagnetic: vector.WrapPi(setTrue - variation),
	}
}
