package main

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/units"
)

// paletteSize is the number of colours in the heatmap scale.
const paletteSize = 32

// gridXYZ exposes one component of the learned cell means as a
// plotter.GridXYZ: columns are heel (degrees), rows speed. Cells without
// updates, including resampled priors, are NaN.
type gridXYZ struct {
	dto       grid.GridDTO
	component int
	unit      string
}

func (g gridXYZ) Dims() (c, r int) {
	if len(g.dto.Table) == 0 {
		return 0, 0
	}
	return len(g.dto.Table[0]), len(g.dto.Table)
}

func (g gridXYZ) Z(c, r int) float64 {
	s := g.dto.Table[r][c].State
	if s == nil || s.Index == 0 {
		return math.NaN()
	}
	return units.ConvertSpeed(s.Mean[g.component][0], g.unit)
}

func (g gridXYZ) X(c int) float64 { return units.ToDegrees(g.dto.Col.Center(c)) }

func (g gridXYZ) Y(r int) float64 { return units.ConvertSpeed(g.dto.Row.Center(r), g.unit) }

// valueRange returns the extent of the learned values. ok is false when no
// cell is learned.
func (g gridXYZ) valueRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	cols, rows := g.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			z := g.Z(c, r)
			if math.IsNaN(z) {
				continue
			}
			lo, hi = math.Min(lo, z), math.Max(hi, z)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	if lo == hi {
		lo, hi = lo-0.05, hi+0.05
	}
	return lo, hi, true
}

// PlotGrid writes correction_forward.png and correction_sideways.png into
// dir and returns their paths.
func PlotGrid(dto grid.GridDTO, unit, dir string) ([]string, error) {
	if len(dto.Table) == 0 || len(dto.Table[0]) == 0 {
		return nil, grid.ErrEmptyGrid
	}
	components := []struct {
		name, title string
	}{
		{"forward", "Forward correction"},
		{"sideways", "Sideways correction"},
	}

	var files []string
	for i, comp := range components {
		xyz := gridXYZ{dto: dto, component: i, unit: unit}
		lo, hi, ok := xyz.valueRange()
		if !ok {
			return nil, fmt.Errorf("grid has no learned cells")
		}

		cm := moreland.SmoothBlueRed()
		// Symmetric around zero so white means no correction.
		limit := math.Max(math.Abs(lo), math.Abs(hi))
		cm.SetMin(-limit)
		cm.SetMax(limit)

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (%s)", comp.title, unit)
		p.X.Label.Text = "Heel (degrees)"
		p.Y.Label.Text = fmt.Sprintf("Speed through water (%s)", unit)

		hm := plotter.NewHeatMap(xyz, cm.Palette(paletteSize))
		hm.Min, hm.Max = -limit, limit
		hm.NaN = color.Transparent
		p.Add(hm)

		bar := &plotter.ColorBar{ColorMap: cm}
		legend := plot.New()
		legend.Title.Text = unit
		legend.HideY()
		legend.X.Padding = 0
		legend.Add(bar)

		file := filepath.Join(dir, fmt.Sprintf("correction_%s.png", comp.name))
		if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", file, err)
		}
		files = append(files, file)

		legendFile := filepath.Join(dir, fmt.Sprintf("correction_%s_scale.png", comp.name))
		if err := legend.Save(4*vg.Inch, 1*vg.Inch, legendFile); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", legendFile, err)
		}
		files = append(files, legendFile)
	}
	return files, nil
}
