// Package fusion is the estimation loop. A Pipeline owns the correction grid,
// the boat-speed and current smoothers, the heading and course stability
// gates and the last known sensor values. Each heartbeat sample runs one
// synchronous cycle: rotate the observed vectors into a common frame, update
// the grid when conditions are stable, correct the boat speed, estimate the
// current and hand the results to a Sink.
//
// Readers (reports, the grid snapshot) take a read lock and receive copies.
// Resampling builds the new grid off-lock and swaps it in under the write
// lock, so readers never see a half-built grid.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/kalman"
	"github.com/banshee-data/speedcurrent/internal/monitoring"
	"github.com/banshee-data/speedcurrent/internal/sample"
	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/stability"
	"github.com/banshee-data/speedcurrent/internal/timeutil"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// ErrNotRunning is returned by readers before Start or after Stop.
var ErrNotRunning = errors.New("fusion pipeline is not running")

var logf = monitoring.Component("fusion")

// Output is what one cycle sends to the sink. A nil field was not enabled.
type Output struct {
	Timestamp time.Time
	Heading   float64 // true, rad
	BoatSpeed *sensor.BoatSpeed
	Current   *sensor.Current
}

// Sink receives computed values. Emit is called outside the pipeline lock.
type Sink interface {
	Emit(Output)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Output)

// Emit calls f(out).
func (f SinkFunc) Emit(out Output) { f(out) }

// GridStore persists the serialised grid. LoadGrid returns nil data and a
// nil error when nothing has been saved yet.
type GridStore interface {
	SaveGrid(ctx context.Context, data []byte) error
	LoadGrid(ctx context.Context) ([]byte, error)
}

// ConfigStore persists configuration the pipeline changes at runtime.
type ConfigStore interface {
	SaveConfig(cfg *config.Config) error
}

// ConfigStoreFunc adapts a function to ConfigStore.
type ConfigStoreFunc func(*config.Config) error

// SaveConfig calls f(cfg).
func (f ConfigStoreFunc) SaveConfig(cfg *config.Config) error { return f(cfg) }

// Options configures a Pipeline. Sink, Store and Configs are optional.
type Options struct {
	Config  *config.Config
	Sink    Sink
	Store   GridStore
	Configs ConfigStore
	Clock   timeutil.Clock
}

// Pipeline is the fusion context.
type Pipeline struct {
	mu sync.RWMutex

	cfg     *config.Config
	sink    Sink
	store   GridStore
	configs ConfigStore
	clock   timeutil.Clock

	grid            *grid.CorrectionGrid
	boatSmoother    *kalman.Smoother
	currentSmoother *kalman.Smoother
	headingGate     *stability.Gate
	cogGate         *stability.Gate

	groundStat  *sample.Stat
	boatStat    *sample.Stat
	currentStat *sample.Stat

	inputs  inputs
	state   cycleState
	running bool

	lastSave   time.Time
	dirty      bool
	generation uint64 // grid changes
}

// inputs holds the last known value of every sensor stream. NaN means the
// stream has not been seen.
type inputs struct {
	heading   float64
	attitude  sensor.Orientation
	stw       float64
	sog       float64
	cog       float64
	variation float64
	seen      map[sensor.Kind]time.Time
}

// cycleState is the outcome of the last completed cycle.
type cycleState struct {
	at             time.Time
	cycles         int
	skipped        int
	updates        int
	stable         bool
	updated        bool
	ground         vector.Vector2
	boat           vector.Vector2
	correction     grid.Correction
	corrected      vector.Vector2
	boatOverGround vector.Vector2
	current        vector.Vector2
	residual       vector.Vector2
}

// New validates the configuration and builds an idle pipeline. Call Start
// to load or create the grid.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	cfg := opts.Config.Clone()

	boat, err := kalman.NewSmoother(cfg.GetBoatSpeedStability())
	if err != nil {
		return nil, fmt.Errorf("boat speed smoother: %w", err)
	}
	stab := cfg.CurrentSmootherStability()
	current, err := kalman.NewSmoother(stab)
	if err != nil {
		return nil, fmt.Errorf("current smoother: %w", err)
	}
	current.Seed(vector.Zero, vector.Diag(1/stab, 1/stab))

	window := cfg.GetSampleWindow()
	p := &Pipeline{
		cfg:             cfg,
		sink:            opts.Sink,
		store:           opts.Store,
		configs:         opts.Configs,
		clock:           opts.Clock,
		boatSmoother:    boat,
		currentSmoother: current,
		groundStat:      sample.NewStat(window, 0),
		boatStat:        sample.NewStat(window, 0),
		currentStat:     sample.NewStat(window, 0),
		inputs: inputs{
			heading:   math.NaN(),
			stw:       math.NaN(),
			sog:       math.NaN(),
			cog:       math.NaN(),
			variation: 0,
			seen:      make(map[sensor.Kind]time.Time),
		},
	}
	return p, nil
}

// Config returns a copy of the effective configuration.
func (p *Pipeline) Config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Clone()
}

// Start loads the persisted grid, or creates a fresh one, and marks the
// pipeline running. A persisted grid whose geometry differs from the
// configuration is discarded, or resampled when resample_on_geometry_change
// is set. Store failures are returned; unusable data is logged.
func (p *Pipeline) Start(ctx context.Context) error {
	row, col := p.cfg.SpeedAxis(), p.cfg.HeelAxis()
	q := p.cfg.ProcessNoise()

	g, fresh, err := p.loadGrid(ctx, row, col, q)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.grid = g
	p.running = true
	p.lastSave = time.Time{}
	p.dirty = fresh
	p.mu.Unlock()

	if fresh && p.store != nil {
		if err := p.Save(ctx); err != nil {
			return fmt.Errorf("save fresh grid: %w", err)
		}
	}
	learned, total := g.Stats()
	logf("started: %d of %d cells learned, mode %s", learned, total, p.cfg.GetMode())
	return nil
}

func (p *Pipeline) loadGrid(ctx context.Context, row, col grid.Axis, q float64) (*grid.CorrectionGrid, bool, error) {
	fresh := func() (*grid.CorrectionGrid, bool, error) {
		g, err := grid.NewCorrectionGrid(row, col, q)
		if err != nil {
			return nil, false, fmt.Errorf("create grid: %w", err)
		}
		logf("correction grid created (%dx%d)", g.Rows(), g.Cols())
		return g, true, nil
	}

	if p.store == nil || p.cfg.GetStartFresh() {
		return fresh()
	}
	data, err := p.store.LoadGrid(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load grid: %w", err)
	}
	if len(data) == 0 {
		return fresh()
	}

	g, err := grid.Unmarshal(data, q, &row, &col)
	if err == nil {
		logf("correction grid loaded")
		return g, false, nil
	}
	if errors.Is(err, grid.ErrGeometryMismatch) && p.cfg.GetResampleOnGeometryChange() {
		old, oerr := grid.Unmarshal(data, q, nil, nil)
		if oerr == nil {
			g, rerr := grid.Resample(old, row, col, p.cfg.GetVarianceFloor())
			if rerr == nil {
				logf("persisted grid resampled onto new geometry")
				return g, true, nil
			}
			err = rerr
		} else {
			err = oerr
		}
	}
	logf("persisted grid unusable, starting fresh: %v", err)
	return fresh()
}

// Stop saves the grid and marks the pipeline stopped.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return nil
	}

	var err error
	if p.store != nil {
		err = p.Save(ctx)
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	logf("stopped")
	return err
}

// Running reports whether Start has completed and Stop has not been called.
func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
