package grid

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/speedcurrent/internal/kalman"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

var (
	// ErrGeometryMismatch means a persisted grid does not match the
	// configured axes.
	ErrGeometryMismatch = errors.New("grid geometry mismatch")
	// ErrEmptyGrid means the persisted table has no rows or columns.
	ErrEmptyGrid = errors.New("grid table is empty")
)

// StateDTO is the persisted form of one filter. Mean is a column vector.
type StateDTO struct {
	Mean       [2][1]float64 `json:"mean"`
	Covariance [2][2]float64 `json:"covariance"`
	Index      int           `json:"index"`
}

// CellDTO wraps a state; a nil State is an unlearned cell.
type CellDTO struct {
	State *StateDTO `json:"state"`
}

// GridDTO is the persisted grid: axes plus a row-major table.
type GridDTO struct {
	Row   Axis        `json:"row"`
	Col   Axis        `json:"col"`
	Table [][]CellDTO `json:"table"`
}

// DTO copies g into its persisted form.
func (g *CorrectionGrid) DTO() GridDTO {
	out := GridDTO{Row: g.cells.Row, Col: g.cells.Col, Table: make([][]CellDTO, g.Rows())}
	for i := range out.Table {
		out.Table[i] = make([]CellDTO, g.Cols())
	}
	g.cells.Each(func(i, j int, s *kalman.State) {
		if s == nil {
			return
		}
		out.Table[i][j] = CellDTO{State: &StateDTO{
			Mean:       [2][1]float64{{s.Mean.X}, {s.Mean.Y}},
			Covariance: s.Covariance,
			Index:      s.Index,
		}}
	})
	return out
}

// Marshal encodes g in the persisted JSON format.
func Marshal(g *CorrectionGrid) ([]byte, error) {
	return json.Marshal(g.DTO())
}

// FromDTO rebuilds a grid from its persisted form. When row and col are
// non-nil the persisted geometry must match them or ErrGeometryMismatch is
// returned.
func FromDTO(dto GridDTO, q float64, row, col *Axis) (*CorrectionGrid, error) {
	if row != nil && !dto.Row.Equal(*row) {
		return nil, fmt.Errorf("%w: row axis %+v, want %+v", ErrGeometryMismatch, dto.Row, *row)
	}
	if col != nil && !dto.Col.Equal(*col) {
		return nil, fmt.Errorf("%w: column axis %+v, want %+v", ErrGeometryMismatch, dto.Col, *col)
	}
	if len(dto.Table) == 0 || len(dto.Table[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	g, err := NewCorrectionGrid(dto.Row, dto.Col, q)
	if err != nil {
		return nil, err
	}
	if len(dto.Table) != g.Rows() {
		return nil, fmt.Errorf("%w: table has %d rows, axis has %d", ErrGeometryMismatch, len(dto.Table), g.Rows())
	}
	for i, cells := range dto.Table {
		if len(cells) != g.Cols() {
			return nil, fmt.Errorf("%w: row %d has %d cells, axis has %d", ErrGeometryMismatch, i, len(cells), g.Cols())
		}
		for j, c := range cells {
			if c.State == nil {
				continue
			}
			s := &kalman.State{
				Mean:       vector.Vector2{X: c.State.Mean[0][0], Y: c.State.Mean[1][0]},
				Covariance: vector.Matrix2(c.State.Covariance),
				Index:      c.State.Index,
			}
			if !s.Mean.IsFinite() || !s.Covariance.IsFinite() || s.Index < 0 {
				return nil, fmt.Errorf("cell (%d,%d) holds an invalid state", i, j)
			}
			g.cells.Set(i, j, s)
		}
	}
	return g, nil
}

// Unmarshal decodes a persisted grid; see FromDTO for the geometry check.
func Unmarshal(data []byte, q float64, row, col *Axis) (*CorrectionGrid, error) {
	var dto GridDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	return FromDTO(dto, q, row, col)
}
