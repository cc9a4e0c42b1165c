package kalman

import (
	"math"
	"sync"

	"github.com/banshee-data/speedcurrent/internal/vector"
)

const (
	referenceIterations = 200000
	referenceTolerance  = 1e-12
)

var (
	referenceMu    sync.Mutex
	referenceCache = map[float64]float64{}
)

// ReferenceMinimumTrace returns the covariance trace a filter with process
// noise q converges to when fed unit-variance observations indefinitely. It
// is the yardstick the grid uses to turn a cell's trace into a weight.
//
// The value is found by iterating the update on a zero observation and is
// cached per q.
func ReferenceMinimumTrace(q float64) float64 {
	referenceMu.Lock()
	defer referenceMu.Unlock()
	if v, ok := referenceCache[q]; ok {
		return v
	}

	var s *State
	prev := math.Inf(1)
	for i := 0; i < referenceIterations; i++ {
		s = Update(s, vector.Zero, vector.Identity2, q)
		tr := s.Trace()
		if math.Abs(prev-tr) <= referenceTolerance*tr {
			break
		}
		prev = tr
	}
	referenceCache[q] = s.Trace()
	return referenceCache[q]
}
