// Package grid owns the speed/heel correction table: a fixed-geometry grid
// of independent two-state Kalman cells, the interpolated query that turns it
// into a continuous correction, resampling onto new geometry and the
// persisted JSON form.
//
// Rows are speed through water (m/s, [0, maxSpeed]); columns are heel
// (rad, [-maxHeel, maxHeel]). Geometry is fixed when a grid is built; only
// cell contents change. This package does no I/O and no locking: the fusion
// pipeline owns the grid and hands out copies.
package grid

import "fmt"

// Grid is a fixed 2-D array of cells over a row and a column axis.
type Grid[C any] struct {
	Row   Axis
	Col   Axis
	cells [][]C
}

// New allocates a grid of zero-valued cells.
func New[C any](row, col Axis) (*Grid[C], error) {
	if err := row.Validate(); err != nil {
		return nil, fmt.Errorf("row axis: %w", err)
	}
	if err := col.Validate(); err != nil {
		return nil, fmt.Errorf("column axis: %w", err)
	}
	cells := make([][]C, row.Len())
	for i := range cells {
		cells[i] = make([]C, col.Len())
	}
	return &Grid[C]{Row: row, Col: col, cells: cells}, nil
}

// Rows returns the number of rows.
func (g *Grid[C]) Rows() int { return len(g.cells) }

// Cols returns the number of columns.
func (g *Grid[C]) Cols() int {
	if len(g.cells) == 0 {
		return 0
	}
	return len(g.cells[0])
}

// At returns the cell at (i, j).
func (g *Grid[C]) At(i, j int) C { return g.cells[i][j] }

// Set replaces the cell at (i, j).
func (g *Grid[C]) Set(i, j int, c C) { g.cells[i][j] = c }

// Indices maps a point to its nearest cell, clamping out-of-range values.
func (g *Grid[C]) Indices(rowValue, colValue float64) (int, int) {
	return g.Row.Index(rowValue), g.Col.Index(colValue)
}

// Each visits every cell in row-major order.
func (g *Grid[C]) Each(fn func(i, j int, c C)) {
	for i, row := range g.cells {
		for j, c := range row {
			fn(i, j, c)
		}
	}
}

// SameGeometry reports whether both grids cover the same cells.
func (g *Grid[C]) SameGeometry(row, col Axis) bool {
	return g.Row.Equal(row) && g.Col.Equal(col)
}

// Map builds a grid of the same geometry by applying fn to every cell.
func Map[C, D any](g *Grid[C], fn func(C) D) *Grid[D] {
	out := &Grid[D]{Row: g.Row, Col: g.Col, cells: make([][]D, len(g.cells))}
	for i, row := range g.cells {
		out.cells[i] = make([]D, len(row))
		for j, c := range row {
			out.cells[i][j] = fn(c)
		}
	}
	return out
}
