package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedcurrent/internal/kalman"
	"github.com/banshee-data/speedcurrent/internal/sample"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

const testQ = 1e-7

var (
	speedAxis = Axis{Min: 0, Max: 20, Step: 1}
	heelAxis  = Axis{Min: -30, Max: 30, Step: 10}
)

func newTestGrid(t *testing.T) *CorrectionGrid {
	t.Helper()
	g, err := NewCorrectionGrid(speedAxis, heelAxis, testQ)
	require.NoError(t, err)
	return g
}

func TestNewCorrectionGridRejectsBadGeometry(t *testing.T) {
	cases := map[string]Axis{
		"zero step":         {Min: 0, Max: 10, Step: 0},
		"inverted":          {Min: 10, Max: 0, Step: 1},
		"step not dividing": {Min: 0, Max: 10, Step: 3},
	}
	for name, axis := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCorrectionGrid(axis, heelAxis, testQ)
			assert.Error(t, err)
		})
	}
}

func TestIndicesClampToGrid(t *testing.T) {
	g := newTestGrid(t)
	assert.Equal(t, 21, g.Rows())
	assert.Equal(t, 7, g.Cols())

	values := []float64{-1e9, -45, -30, -14.9, -5, 0, 4.4, 4.6, 15, 30, 31, 1e9}
	for _, s := range values {
		for _, h := range values {
			i, j := g.Indices(s, h)
			assert.GreaterOrEqual(t, i, 0)
			assert.Less(t, i, g.Rows())
			assert.GreaterOrEqual(t, j, 0)
			assert.Less(t, j, g.Cols())
		}
	}

	i, j := g.Indices(5.4, 4)
	assert.Equal(t, 5, i)
	assert.Equal(t, 3, j)
	i, j = g.Indices(-3, -80)
	assert.Equal(t, 0, i)
	assert.Equal(t, 0, j)
	i, j = g.Indices(99, 80)
	assert.Equal(t, 20, i)
	assert.Equal(t, 6, j)
}

func TestObserveSeededCell(t *testing.T) {
	g := newTestGrid(t)
	require.True(t, g.Observe(5, 0, vector.Zero, vector.Identity2))
	require.True(t, g.Observe(5, 0, vector.Vector2{X: 0.1, Y: 0.05}, vector.Identity2))

	cell := g.CellAt(5, 0)
	require.NotNil(t, cell)
	gain := (1 + testQ) / (2 + testQ)
	assert.InDelta(t, 0.1*gain, cell.Mean.X, 1e-12)
	assert.InDelta(t, 0.05*gain, cell.Mean.Y, 1e-12)
	assert.Equal(t, 2, cell.Index)

	// Other cells are untouched.
	assert.Nil(t, g.CellAt(6, 0))
	learned, total := g.Stats()
	assert.Equal(t, 1, learned)
	assert.Equal(t, 21*7, total)
}

func TestObserveRejectsNonFinite(t *testing.T) {
	g := newTestGrid(t)
	assert.False(t, g.Observe(5, 0, vector.Vector2{X: math.NaN()}, vector.Identity2))
	assert.False(t, g.Observe(5, 0, vector.Zero, vector.Matrix2{{math.Inf(1), 0}, {0, 1}}))
	assert.Nil(t, g.CellAt(5, 0))
}

func TestUpdateFromSamples(t *testing.T) {
	ground := sample.PolarSample{Mean: vector.Vector2{X: 5}, Variance: [2]float64{0.01, 0.02}, N: 5}
	current := sample.PolarSample{Mean: vector.Vector2{X: 0.5}, Variance: [2]float64{0.01, 0.01}, N: 5}
	boat := sample.PolarSample{Mean: vector.Vector2{X: 4.3, Y: 0.1}, Variance: [2]float64{0.03, 0.03}, N: 5}

	t.Run("heading zero keeps frames aligned", func(t *testing.T) {
		g := newTestGrid(t)
		require.True(t, g.Update(4.3, 0, ground, current, boat, 0))
		cell := g.CellAt(4.3, 0)
		require.NotNil(t, cell)
		assert.InDelta(t, 0.2, cell.Mean.X, 1e-12)
		assert.InDelta(t, -0.1, cell.Mean.Y, 1e-12)
		assert.InDelta(t, 0.05, cell.Covariance[0][0], 1e-12)
		assert.InDelta(t, 0.06, cell.Covariance[1][1], 1e-12)
	})

	t.Run("heading rotates ground vectors into the boat frame", func(t *testing.T) {
		g := newTestGrid(t)
		heading := math.Pi / 2
		// Sailing east: ground speed and current point east in the ground frame.
		east := sample.PolarSample{Mean: vector.Vector2{Y: 5}, Variance: ground.Variance, N: 5}
		eastCurrent := sample.PolarSample{Mean: vector.Vector2{Y: 0.5}, Variance: current.Variance, N: 5}
		require.True(t, g.Update(4.3, 0, east, eastCurrent, boat, heading))
		cell := g.CellAt(4.3, 0)
		require.NotNil(t, cell)
		assert.InDelta(t, 0.2, cell.Mean.X, 1e-9)
		assert.InDelta(t, -0.1, cell.Mean.Y, 1e-9)
	})

	t.Run("insufficient samples skip the update", func(t *testing.T) {
		g := newTestGrid(t)
		thin := boat
		thin.N = 1
		assert.False(t, g.Update(4.3, 0, ground, current, thin, 0))
		assert.False(t, g.Update(4.3, 0, ground, sample.PolarSample{}, boat, 0))
		assert.False(t, g.Update(4.3, 0, ground, current, boat, math.NaN()))
		learned, _ := g.Stats()
		assert.Zero(t, learned)
	})
}

func TestQueryZeroSpeed(t *testing.T) {
	g := newTestGrid(t)
	for i := 0; i < 3; i++ {
		require.True(t, g.Observe(0, 0, vector.Vector2{X: 1, Y: 1}, vector.Identity2))
	}
	for _, heel := range []float64{-30, -7, 0, 12, 30} {
		assert.Equal(t, Correction{}, g.Query(0, heel))
	}
}

func TestQueryEmptyGrid(t *testing.T) {
	g := newTestGrid(t)
	assert.Equal(t, Correction{}, g.Query(5.5, 3))
}

func TestQueryAveragesEquidistantNeighbours(t *testing.T) {
	g := newTestGrid(t)
	require.True(t, g.Observe(5, 0, vector.Vector2{X: 0.2, Y: 0.1}, vector.Identity2))
	require.True(t, g.Observe(6, 0, vector.Vector2{X: 0.4, Y: -0.3}, vector.Identity2))

	c := g.Query(5.5, 0)
	assert.InDelta(t, 0.3, c.X, 1e-12)
	assert.InDelta(t, -0.1, c.Y, 1e-12)
	assert.Greater(t, c.TotalWeight, 0.0)
	assert.Equal(t, vector.Vector2{X: c.X, Y: c.Y}, c.Vector())
}

func TestQueryFavoursConfidentCells(t *testing.T) {
	g := newTestGrid(t)
	for i := 0; i < 20; i++ {
		require.True(t, g.Observe(5, 0, vector.Vector2{X: 1}, vector.Identity2))
	}
	require.True(t, g.Observe(6, 0, vector.Vector2{X: -1}, vector.Identity2))

	c := g.Query(5.5, 0)
	assert.Greater(t, c.X, 0.5)
}

func TestNeighbourWeightsNormalise(t *testing.T) {
	g := newTestGrid(t)
	require.True(t, g.Observe(3, -10, vector.Vector2{X: 0.1}, vector.Identity2))
	require.True(t, g.Observe(4, -10, vector.Vector2{X: 0.2}, vector.Identity2))
	require.True(t, g.Observe(4, 0, vector.Vector2{X: 0.3}, vector.Diag(2, 2)))
	require.True(t, g.Observe(4, 0, vector.Vector2{X: 0.3}, vector.Diag(2, 2)))

	for _, pt := range [][2]float64{{3.2, -7}, {3.9, -1}, {3.5, -5}, {4, -10}} {
		ns := g.Neighbours(pt[0], pt[1])
		assert.LessOrEqual(t, len(ns), 4)
		var total float64
		for _, n := range ns {
			total += n.Weight
		}
		require.Greater(t, total, 0.0)
		var sum float64
		for _, n := range ns {
			sum += n.Weight / total
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestNeighboursDeduplicateExactPoints(t *testing.T) {
	g := newTestGrid(t)
	assert.Len(t, g.Neighbours(5, 0), 1)
	assert.Len(t, g.Neighbours(5.5, 0), 2)
	assert.Len(t, g.Neighbours(5, 5), 2)
	assert.Len(t, g.Neighbours(5.5, 5), 4)
	// Clamped to the top-right corner.
	assert.Len(t, g.Neighbours(50, 50), 1)
}

func TestCorrectionWithVariance(t *testing.T) {
	g := newTestGrid(t)
	require.True(t, g.Observe(5, 0, vector.Vector2{X: 0.2}, vector.Diag(0.5, 0.5)))
	require.True(t, g.Observe(6, 0, vector.Vector2{X: 0.4}, vector.Diag(0.5, 0.5)))

	mean, variance, cov := g.CorrectionWithVariance(5.5, 0)
	assert.InDelta(t, 0.3, mean.X, 1e-9)
	assert.InDelta(t, 0.0, mean.Y, 1e-9)
	// Cell variance plus spread of the two means about their average.
	assert.InDelta(t, 0.5+0.01, variance[0], 1e-9)
	assert.InDelta(t, 0.5, variance[1], 1e-9)
	assert.Equal(t, 2, cov.Learned)
	assert.Equal(t, 2, cov.Neighbours)
	assert.True(t, cov.InBounds)
	assert.InDelta(t, 1.0, cov.EffectiveCount, 1e-9)

	_, _, outside := g.CorrectionWithVariance(25, 0)
	assert.False(t, outside.InBounds)
}

func TestCloneIsIndependent(t *testing.T) {
	g := newTestGrid(t)
	require.True(t, g.Observe(5, 0, vector.Vector2{X: 1}, vector.Identity2))
	c := g.Clone()
	require.True(t, g.Observe(5, 0, vector.Vector2{X: 3}, vector.Identity2))

	assert.Equal(t, 1, c.CellAt(5, 0).Index)
	assert.Equal(t, 1.0, c.CellAt(5, 0).Mean.X)
	assert.Equal(t, 2, g.CellAt(5, 0).Index)

	// Cell returns a copy too.
	cell := g.CellAt(5, 0)
	cell.Index = 99
	assert.Equal(t, 2, g.CellAt(5, 0).Index)
}

func cellIndex(s *kalman.State) int {
	if s == nil {
		return 0
	}
	return s.Index
}
