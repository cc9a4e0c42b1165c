package vector

// Matrix2 is a row-major 2×2 matrix. Covariances are stored in this form so
// that filter state can be copied by value.
type Matrix2 [2][2]float64

// Identity2 is the 2×2 identity matrix.
var Identity2 = Matrix2{{1, 0}, {0, 1}}

// Diag returns diag(a, b).
func Diag(a, b float64) Matrix2 {
	return Matrix2{{a, 0}, {0, b}}
}

// Trace returns the sum of the diagonal.
func (m Matrix2) Trace() float64 {
	return m[0][0] + m[1][1]
}

// Det returns the determinant.
func (m Matrix2) Det() float64 {
	return m[0][0]*m[1][1] - m[0][1]*m[1][0]
}

// Plus returns m + o.
func (m Matrix2) Plus(o Matrix2) Matrix2 {
	return Matrix2{
		{m[0][0] + o[0][0], m[0][1] + o[0][1]},
		{m[1][0] + o[1][0], m[1][1] + o[1][1]},
	}
}

// Diagonal returns the diagonal as a (xx, yy) pair.
func (m Matrix2) Diagonal() [2]float64 {
	return [2]float64{m[0][0], m[1][1]}
}

// Slice returns the matrix as a row-major slice, the layout gonum expects.
func (m Matrix2) Slice() []float64 {
	return []float64{m[0][0], m[0][1], m[1][0], m[1][1]}
}

// IsFinite reports whether every element is finite.
func (m Matrix2) IsFinite() bool {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if !IsFinite(m[i][j]) {
				return false
			}
		}
	}
	return true
}
