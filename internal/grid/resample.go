package grid

import (
	"math"

	"github.com/banshee-data/speedcurrent/internal/kalman"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// DefaultVarianceFloor is the smallest per-axis variance a resampled prior
// may carry.
const DefaultVarianceFloor = 0.01

// Resample builds a grid over new geometry whose cells are seeded from old.
// Each new cell centre takes the inverse-distance estimate of old with its
// variance floored at varianceFloor. A seeded cell keeps index 1 when its
// centre is inside the old bounds and either lands exactly on a learned old
// centre or is covered by at least two learned old cells whose weighted
// sample count reaches one. Otherwise it holds a prior with index 0 and must
// be learned again. Cells with no learned coverage at all stay empty.
//
// old is only read; the result shares no state with it.
func Resample(old *CorrectionGrid, row, col Axis, varianceFloor float64) (*CorrectionGrid, error) {
	out, err := NewCorrectionGrid(row, col, old.q)
	if err != nil {
		return nil, err
	}
	if !(varianceFloor > 0) {
		varianceFloor = DefaultVarianceFloor
	}

	for i := 0; i < out.Rows(); i++ {
		for j := 0; j < out.Cols(); j++ {
			speed, heel := row.Center(i), col.Center(j)
			mean, variance, cov := old.CorrectionWithVariance(speed, heel)
			if cov.Learned == 0 {
				continue
			}
			exact := cov.Neighbours == 1 && cov.Learned == 1
			index := 0
			if cov.InBounds && cov.EffectiveCount >= 1 && (exact || cov.Learned >= 2) {
				index = 1
			}
			out.cells.Set(i, j, &kalman.State{
				Mean: mean,
				Covariance: vector.Diag(
					math.Max(variance[0], varianceFloor),
					math.Max(variance[1], varianceFloor),
				),
				Index: index,
			})
		}
	}
	return out, nil
}
