package fusion

import (
	"time"

	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// Reference planes of a reported vector.
const (
	PlaneGround = "ref_ground"
	PlaneBoat   = "ref_boat"
)

// PolarReport is one named vector in magnitude/angle form.
type PolarReport struct {
	ID    string  `json:"id"`
	Plane string  `json:"plane"`
	Label string  `json:"label"`
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

// DeltaReport is one named raw input.
type DeltaReport struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value"`
}

// CellReport describes the grid cell nearest the current speed and heel.
type CellReport struct {
	Row     int            `json:"row"`
	Col     int            `json:"col"`
	Learned bool           `json:"learned"`
	Index   int            `json:"index"`
	Trace   float64        `json:"trace"`
	Mean    vector.Vector2 `json:"mean"`
}

// Report is the state behind the results endpoint.
type Report struct {
	Timestamp    time.Time          `json:"timestamp"`
	Options      *config.Config     `json:"options"`
	Polars       []PolarReport      `json:"polars"`
	Heading      float64            `json:"heading"`
	Attitude     sensor.Orientation `json:"attitude"`
	Variation    float64            `json:"variation"`
	HeadingRange float64            `json:"heading_range"`
	CourseRange  float64            `json:"course_range"`
	Stable       bool               `json:"stable"`
	Updated      bool               `json:"updated"`
	Cell         CellReport         `json:"cell"`
	Weight       float64            `json:"correction_weight"`
	Learned      int                `json:"learned_cells"`
	Cells        int                `json:"total_cells"`
	Cycles       int                `json:"cycles"`
	Skipped      int                `json:"skipped"`
	Updates      int                `json:"updates"`
}

// Vectors is the payload of the vectors endpoint: raw inputs and the
// vectors of the last cycle.
type Vectors struct {
	Deltas []DeltaReport `json:"deltas"`
	Polars []PolarReport `json:"polars"`
}

// Report returns the outcome of the last cycle. Non-finite values are
// reported as zero so that the report always encodes as JSON.
func (p *Pipeline) Report() (Report, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return Report{}, ErrNotRunning
	}

	st := p.state
	in := p.inputs
	r := Report{
		Timestamp: st.at,
		Options:   p.cfg.Clone(),
		Polars:    p.polars(),
		Heading:   finite(in.heading),
		Attitude: sensor.Orientation{
			Roll:  finite(in.attitude.Roll),
			Pitch: finite(in.attitude.Pitch),
			Yaw:   finite(in.attitude.Yaw),
		},
		Variation: finite(in.variation),
		Stable:    st.stable,
		Updated:   st.updated,
		Weight:    st.correction.TotalWeight,
		Cycles:    st.cycles,
		Skipped:   st.skipped,
		Updates:   st.updates,
	}
	if p.headingGate != nil {
		r.HeadingRange = p.headingGate.Range()
	}
	if p.cogGate != nil {
		r.CourseRange = p.cogGate.Range()
	}
	r.Learned, r.Cells = p.grid.Stats()

	i, j := p.grid.Indices(finite(in.stw), finite(in.attitude.Roll))
	r.Cell = CellReport{Row: i, Col: j}
	if cell := p.grid.Cell(i, j); cell != nil {
		r.Cell.Learned = cell.Learned()
		r.Cell.Index = cell.Index
		r.Cell.Trace = cell.Trace()
		r.Cell.Mean = cell.Mean
	}
	return r, nil
}

// Vectors returns the raw inputs and the vectors of the last cycle.
func (p *Pipeline) Vectors() (Vectors, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return Vectors{}, ErrNotRunning
	}
	in := p.inputs
	return Vectors{
		Deltas: []DeltaReport{
			{ID: "heading", Value: finite(in.heading)},
			{ID: "attitude", Value: sensor.Orientation{
				Roll:  finite(in.attitude.Roll),
				Pitch: finite(in.attitude.Pitch),
				Yaw:   finite(in.attitude.Yaw),
			}},
		},
		Polars: p.polars(),
	}, nil
}

func (p *Pipeline) polars() []PolarReport {
	st := p.state
	return []PolarReport{
		polar("groundSpeed", PlaneGround, "observed speed over ground", st.ground),
		polar("boatSpeed", PlaneBoat, "observed boat speed", st.boat),
		polar("correctedSpeed", PlaneBoat, "estimated boat speed", st.corrected),
		polar("boatSpeedRefGround", PlaneGround, "boat speed over ground", st.boatOverGround),
		polar("current", PlaneGround, "current", st.current),
		polar("correction", PlaneBoat, "correction", st.correction.Vector()),
		polar("residual", PlaneGround, "residual", st.residual),
	}
}

func polar(id, plane, label string, v vector.Vector2) PolarReport {
	if !v.IsFinite() {
		v = vector.Zero
	}
	pol := vector.ToPolar(v)
	return PolarReport{ID: id, Plane: plane, Label: label, Speed: pol.Magnitude, Angle: pol.Angle}
}

func finite(v float64) float64 {
	if !vector.IsFinite(v) {
		return 0
	}
	return v
}
