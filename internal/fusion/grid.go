package fusion

import (
	"context"
	"fmt"

	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/grid"
)

// Snapshot returns a deep copy of the live grid.
func (p *Pipeline) Snapshot() (*grid.CorrectionGrid, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.grid == nil {
		return nil, ErrNotRunning
	}
	return p.grid.Clone(), nil
}

// GridDTO returns the live grid in its persisted form.
func (p *Pipeline) GridDTO() (grid.GridDTO, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.grid == nil {
		return grid.GridDTO{}, ErrNotRunning
	}
	return p.grid.DTO(), nil
}

// Save serialises the grid under the read lock and writes it to the store
// outside the lock. The dirty flag is cleared only when no update landed
// while the write was in flight.
func (p *Pipeline) Save(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("no grid store configured")
	}
	p.mu.RLock()
	if p.grid == nil {
		p.mu.RUnlock()
		return ErrNotRunning
	}
	data, err := grid.Marshal(p.grid)
	generation := p.generation
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode grid: %w", err)
	}

	if err := p.store.SaveGrid(ctx, data); err != nil {
		return fmt.Errorf("save grid: %w", err)
	}

	p.mu.Lock()
	if p.generation == generation {
		p.dirty = false
	}
	p.mu.Unlock()
	logf("correction grid saved (%d bytes)", len(data))
	return nil
}

// Dirty reports whether the grid changed since the last save.
func (p *Pipeline) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

// Resample migrates the live grid onto the speed and heel axes of
// geometry. The new grid is built from a copy without holding the lock and
// then swapped in; updates that land on the old grid in between are lost.
// The pipeline's own axes follow the new grid and are handed to the
// configuration store, so that a restart finds a matching geometry.
func (p *Pipeline) Resample(geometry *config.Config) error {
	if err := geometry.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	old, err := p.Snapshot()
	if err != nil {
		return err
	}
	next, err := grid.Resample(old, geometry.SpeedAxis(), geometry.HeelAxis(), p.cfg.GetVarianceFloor())
	if err != nil {
		return fmt.Errorf("resample: %w", err)
	}

	p.mu.Lock()
	p.grid = next
	p.markDirty()
	p.cfg.MaxSpeed = ptrFloat(geometry.GetMaxSpeed())
	p.cfg.SpeedStep = ptrFloat(geometry.GetSpeedStep())
	p.cfg.MaxHeel = ptrFloat(geometry.GetMaxHeel())
	p.cfg.HeelStep = ptrFloat(geometry.GetHeelStep())
	cfg := p.cfg.Clone()
	p.mu.Unlock()

	learned, total := next.Stats()
	logf("grid resampled to %dx%d, %d of %d cells confident", next.Rows(), next.Cols(), learned, total)

	if p.configs != nil {
		if err := p.configs.SaveConfig(cfg); err != nil {
			return fmt.Errorf("grid resampled but geometry not saved: %w", err)
		}
	}
	return nil
}

// markDirty records a grid change. Callers hold the write lock.
func (p *Pipeline) markDirty() {
	p.dirty = true
	p.generation++
}

func ptrFloat(v float64) *float64 { return &v }
