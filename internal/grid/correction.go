package grid

import (
	"math"

	"github.com/banshee-data/speedcurrent/internal/kalman"
	"github.com/banshee-data/speedcurrent/internal/sample"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// weightEpsilon keeps inverse-distance and inverse-trace weights finite.
const weightEpsilon = 1e-6

// CorrectionGrid is the speed/heel table of correction filters. A nil cell
// has never been observed.
type CorrectionGrid struct {
	cells    *Grid[*kalman.State]
	q        float64
	refTrace float64
}

// Correction is the result of an interpolated query, in the boat frame.
type Correction struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TotalWeight float64 `json:"total_weight"`
}

// Vector returns the correction as a Vector2.
func (c Correction) Vector() vector.Vector2 {
	return vector.Vector2{X: c.X, Y: c.Y}
}

// Neighbour is one cell bracketing a query point.
type Neighbour struct {
	Row      int
	Col      int
	Distance float64 // Euclidean, in cell units
	Weight   float64 // zero for unlearned cells
	State    *kalman.State
}

// Coverage summarises how well the old grid supports a point during
// resampling.
type Coverage struct {
	Neighbours     int
	Learned        int
	EffectiveCount float64
	InBounds       bool
}

// NewCorrectionGrid returns an empty grid whose cells use process noise q.
func NewCorrectionGrid(row, col Axis, q float64) (*CorrectionGrid, error) {
	cells, err := New[*kalman.State](row, col)
	if err != nil {
		return nil, err
	}
	return &CorrectionGrid{cells: cells, q: q, refTrace: kalman.ReferenceMinimumTrace(q)}, nil
}

// Geometry returns the row (speed) and column (heel) axes.
func (g *CorrectionGrid) Geometry() (row, col Axis) {
	return g.cells.Row, g.cells.Col
}

// ProcessNoise returns q.
func (g *CorrectionGrid) ProcessNoise() float64 { return g.q }

// Rows returns the number of speed bins.
func (g *CorrectionGrid) Rows() int { return g.cells.Rows() }

// Cols returns the number of heel bins.
func (g *CorrectionGrid) Cols() int { return g.cells.Cols() }

// Indices returns the (row, column) of the cell nearest to (speed, heel).
func (g *CorrectionGrid) Indices(speed, heel float64) (int, int) {
	return g.cells.Indices(speed, heel)
}

// Cell returns a copy of the state at (i, j); nil when unlearned.
func (g *CorrectionGrid) Cell(i, j int) *kalman.State {
	return g.cells.At(i, j).Clone()
}

// CellAt returns a copy of the state nearest to (speed, heel).
func (g *CorrectionGrid) CellAt(speed, heel float64) *kalman.State {
	i, j := g.Indices(speed, heel)
	return g.Cell(i, j)
}

// Update folds one boat-frame error observation into the cell at
// (speed, heel). Ground speed and current are ground-frame statistics, boat
// speed is boat-frame; all three need at least sample.MinCount observations.
// It reports whether a cell was updated.
func (g *CorrectionGrid) Update(speed, heel float64, ground, current, boat sample.PolarSample, heading float64) bool {
	if !ground.Usable() || !current.Usable() || !boat.Usable() {
		return false
	}
	if !vector.IsFinite(heading) {
		return false
	}

	groundVec := vector.Rotate(ground.Mean, heading)
	currentVec := vector.Rotate(current.Mean, heading)
	z := vector.Sub(vector.Sub(groundVec, currentVec), boat.Mean)

	r := vector.RotateVariance(ground.Variance, heading).
		Plus(vector.RotateVariance(current.Variance, heading)).
		Plus(vector.Diag(boat.Variance[0], boat.Variance[1]))

	return g.Observe(speed, heel, z, r)
}

// Observe folds a prepared observation z with covariance r into the cell at
// (speed, heel).
func (g *CorrectionGrid) Observe(speed, heel float64, z vector.Vector2, r vector.Matrix2) bool {
	if !z.IsFinite() || !r.IsFinite() {
		return false
	}
	i, j := g.Indices(speed, heel)
	g.cells.Set(i, j, kalman.Update(g.cells.At(i, j), z, r, g.q))
	return true
}

// Neighbours returns the up-to-four cells bracketing (speed, heel), each
// weighted by inverse distance times the ratio of the reference trace to the
// cell trace. Unlearned cells carry zero weight.
func (g *CorrectionGrid) Neighbours(speed, heel float64) []Neighbour {
	out := g.bracket(speed, heel)
	for k := range out {
		n := &out[k]
		if !n.State.Learned() {
			continue
		}
		n.Weight = (1 / (n.Distance + weightEpsilon)) * (g.refTrace / (n.State.Trace() + weightEpsilon))
	}
	return out
}

// Query returns the interpolated correction at (speed, heel). At zero speed
// the correction is undefined and a zero result with zero weight comes back;
// the same holds when no bracketing cell has been learned.
func (g *CorrectionGrid) Query(speed, heel float64) Correction {
	if !(speed > 0) {
		return Correction{}
	}
	var x, y, total float64
	for _, n := range g.Neighbours(speed, heel) {
		if n.Weight == 0 {
			continue
		}
		x += n.State.Mean.X * n.Weight
		y += n.State.Mean.Y * n.Weight
		total += n.Weight
	}
	if total == 0 {
		return Correction{}
	}
	return Correction{X: x / total, Y: y / total, TotalWeight: total}
}

// CorrectionWithVariance interpolates with inverse-distance weights only and
// also returns the weighted per-axis variance across the learned neighbours:
// the weighted mean of their own variances plus the weighted spread of their
// means. The coverage tells the resampler how much the estimate can be
// trusted.
func (g *CorrectionGrid) CorrectionWithVariance(speed, heel float64) (vector.Vector2, [2]float64, Coverage) {
	row, col := g.Geometry()
	cov := Coverage{InBounds: row.Contains(speed) && col.Contains(heel)}

	neighbours := g.bracket(speed, heel)
	cov.Neighbours = len(neighbours)

	var allWeight, learnedWeight, countWeighted float64
	var mean vector.Vector2
	for _, n := range neighbours {
		w := 1 / (n.Distance + weightEpsilon)
		allWeight += w
		if !n.State.Learned() {
			continue
		}
		cov.Learned++
		learnedWeight += w
		countWeighted += w * float64(n.State.Index)
		mean.X += w * n.State.Mean.X
		mean.Y += w * n.State.Mean.Y
	}
	if learnedWeight == 0 {
		return vector.Zero, [2]float64{}, cov
	}
	cov.EffectiveCount = countWeighted / allWeight
	mean = vector.Scale(mean, 1/learnedWeight)

	var variance [2]float64
	for _, n := range neighbours {
		if !n.State.Learned() {
			continue
		}
		w := 1 / (n.Distance + weightEpsilon) / learnedWeight
		dx := n.State.Mean.X - mean.X
		dy := n.State.Mean.Y - mean.Y
		variance[0] += w * (n.State.Covariance[0][0] + dx*dx)
		variance[1] += w * (n.State.Covariance[1][1] + dy*dy)
	}
	return mean, variance, cov
}

// bracket collects the floor/ceil cells around the clamped point, without
// duplicates, with their normalised distances.
func (g *CorrectionGrid) bracket(speed, heel float64) []Neighbour {
	row, col := g.Geometry()
	s := row.Clamp(speed)
	h := col.Clamp(heel)
	fi, fj := row.Fraction(s), col.Fraction(h)

	rows := bracketIndices(fi, g.Rows())
	cols := bracketIndices(fj, g.Cols())

	out := make([]Neighbour, 0, len(rows)*len(cols))
	for _, i := range rows {
		for _, j := range cols {
			ds := (s - row.Center(i)) / row.Step
			dh := (h - col.Center(j)) / col.Step
			out = append(out, Neighbour{
				Row:      i,
				Col:      j,
				Distance: math.Hypot(ds, dh),
				State:    g.cells.At(i, j),
			})
		}
	}
	return out
}

func bracketIndices(f float64, n int) []int {
	lo := int(math.Floor(f))
	hi := int(math.Ceil(f))
	lo = clampIndex(lo, n)
	hi = clampIndex(hi, n)
	if lo == hi {
		return []int{lo}
	}
	return []int{lo, hi}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

// Clone returns a deep copy that shares no cell state with g.
func (g *CorrectionGrid) Clone() *CorrectionGrid {
	return &CorrectionGrid{
		cells:    Map(g.cells, (*kalman.State).Clone),
		q:        g.q,
		refTrace: g.refTrace,
	}
}

// Stats returns the number of learned cells and the total cell count.
func (g *CorrectionGrid) Stats() (learned, total int) {
	g.cells.Each(func(_, _ int, s *kalman.State) {
		total++
		if s.Learned() {
			learned++
		}
	})
	return learned, total
}
