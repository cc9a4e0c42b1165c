// Package api serves the estimator's state over HTTP: the latest results and
// vectors, the correction grid as JSON or a heatmap page, and grid
// maintenance (save, resample).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/db"
	"github.com/banshee-data/speedcurrent/internal/fusion"
	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/httputil"
	"github.com/banshee-data/speedcurrent/internal/monitoring"
	"github.com/banshee-data/speedcurrent/internal/units"
	"github.com/banshee-data/speedcurrent/internal/version"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

var logf = monitoring.Component("api")

// Engine is the part of the fusion pipeline the API reads and drives.
type Engine interface {
	Config() *config.Config
	Report() (fusion.Report, error)
	Vectors() (fusion.Vectors, error)
	GridDTO() (grid.GridDTO, error)
	Save(ctx context.Context) error
	Resample(geometry *config.Config) error
}

// SnapshotLister lists stored grid snapshots.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]db.GridSnapshot, error)
}

// Server holds the handlers' dependencies. snapshots may be nil.
type Server struct {
	engine    Engine
	snapshots SnapshotLister
	units     string
}

// NewServer returns a server reporting speeds in unit (see internal/units).
func NewServer(engine Engine, snapshots SnapshotLister, unit string) *Server {
	if !units.IsValid(unit) {
		unit = units.Knots
	}
	return &Server{engine: engine, snapshots: snapshots, units: unit}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/results", s.getOnly(s.showResults))
	mux.HandleFunc("/api/vectors", s.getOnly(s.showVectors))
	mux.HandleFunc("/api/config", s.getOnly(s.showConfig))
	mux.HandleFunc("/api/version", s.getOnly(s.showVersion))
	mux.HandleFunc("/api/grid", s.getOnly(s.showGrid))
	mux.HandleFunc("/api/grid/chart", s.getOnly(s.showGridChart))
	mux.HandleFunc("/api/grid/snapshots", s.getOnly(s.listSnapshots))
	mux.HandleFunc("/api/grid/save", s.postOnly(s.saveGrid))
	mux.HandleFunc("/api/grid/resample", s.postOnly(s.resampleGrid))
	return mux
}

func (s *Server) getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func (s *Server) postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

// unitsFor returns the ?units= override or the server default.
func (s *Server) unitsFor(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q, expected one of %s", u, units.GetValidUnitsString())
	}
	return u, nil
}

// engineError maps pipeline errors onto HTTP statuses.
func engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, fusion.ErrNotRunning) {
		httputil.ServiceUnavailable(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func convertPolars(ps []fusion.PolarReport, unit string) {
	for i := range ps {
		ps[i].Speed = units.ConvertSpeed(ps[i].Speed, unit)
	}
}

func (s *Server) showResults(w http.ResponseWriter, r *http.Request) {
	unit, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	report, err := s.engine.Report()
	if err != nil {
		engineError(w, err)
		return
	}
	convertPolars(report.Polars, unit)
	httputil.WriteJSONOK(w, struct {
		fusion.Report
		Units string `json:"units"`
	}{report, unit})
}

func (s *Server) showVectors(w http.ResponseWriter, r *http.Request) {
	unit, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	v, err := s.engine.Vectors()
	if err != nil {
		engineError(w, err)
		return
	}
	convertPolars(v.Polars, unit)
	httputil.WriteJSONOK(w, struct {
		fusion.Vectors
		Units string `json:"units"`
	}{v, unit})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.engine.Config())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) showGrid(w http.ResponseWriter, r *http.Request) {
	dto, err := s.engine.GridDTO()
	if err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, dto)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		httputil.NotFound(w, "no snapshot store configured")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	snaps, err := s.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list snapshots: %v", err))
		return
	}
	if snaps == nil {
		snaps = []db.GridSnapshot{}
	}
	httputil.WriteJSONOK(w, snaps)
}

func (s *Server) saveGrid(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Save(r.Context()); err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "saved"})
}

// ResampleRequest is the body of POST /api/grid/resample. Speeds are knots,
// angles degrees; omitted fields keep the current geometry.
type ResampleRequest struct {
	MaxSpeed  *float64 `json:"max_speed,omitempty"`
	SpeedStep *float64 `json:"speed_step,omitempty"`
	MaxHeel   *float64 `json:"max_heel,omitempty"`
	HeelStep  *float64 `json:"heel_step,omitempty"`
}

func (s *Server) resampleGrid(w http.ResponseWriter, r *http.Request) {
	var req ResampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	cfg := s.engine.Config()
	if req.MaxSpeed != nil {
		cfg.MaxSpeed = req.MaxSpeed
	}
	if req.SpeedStep != nil {
		cfg.SpeedStep = req.SpeedStep
	}
	if req.MaxHeel != nil {
		cfg.MaxHeel = req.MaxHeel
	}
	if req.HeelStep != nil {
		cfg.HeelStep = req.HeelStep
	}
	if err := cfg.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.engine.Resample(cfg); err != nil {
		engineError(w, err)
		return
	}

	dto, err := s.engine.GridDTO()
	if err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "resampled",
		"rows":   len(dto.Table),
		"row":    dto.Row,
		"col":    dto.Col,
	})
}
