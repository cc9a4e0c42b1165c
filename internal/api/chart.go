package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/httputil"
	"github.com/banshee-data/speedcurrent/internal/units"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// showGridChart renders the correction grid as two heatmaps, forward and
// sideways correction, over speed (rows) and heel (columns). Unlearned cells
// are left blank.
func (s *Server) showGridChart(w http.ResponseWriter, r *http.Request) {
	unit, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	dto, err := s.engine.GridDTO()
	if err != nil {
		engineError(w, err)
		return
	}

	page := components.NewPage()
	page.PageTitle = "Correction grid"
	page.AddCharts(
		gridHeatMap(dto, unit, "Forward correction", 0),
		gridHeatMap(dto, unit, "Sideways correction", 1),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render grid chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// gridHeatMap plots component axis (0 forward, 1 sideways) of every learned
// cell mean.
func gridHeatMap(dto grid.GridDTO, unit, title string, axis int) *charts.HeatMap {
	speeds := make([]string, len(dto.Table))
	for i := range speeds {
		speeds[i] = fmt.Sprintf("%.1f", units.ConvertSpeed(dto.Row.Center(i), unit))
	}
	var heels []string
	if len(dto.Table) > 0 {
		heels = make([]string, len(dto.Table[0]))
		for j := range heels {
			heels[j] = fmt.Sprintf("%.0f°", units.ToDegrees(dto.Col.Center(j)))
		}
	}

	var data []opts.HeatMapData
	extent := 0.0
	learned := 0
	for i, row := range dto.Table {
		for j, c := range row {
			if c.State == nil || c.State.Index == 0 {
				continue
			}
			v := units.ConvertSpeed(c.State.Mean[axis][0], unit)
			extent = math.Max(extent, math.Abs(v))
			learned++
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, math.Round(v*1000) / 1000}})
		}
	}
	if extent == 0 {
		extent = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("units=%s learned=%d", unit, learned)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: heels, Name: "Heel", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: speeds, Name: "Speed", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(-extent),
			Max:        float32(extent),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries(title, data)
	return hm
}
