package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		mode              string
		wantMode          string
		startFresh        bool
		updateTable       bool
		estimateBoatSpeed bool
		assumeCurrent     bool
		estimateCurrent   bool
		correction        float64
		current           float64
	}{
		{ModeNewNoCurrent, ModeFreshNoCurrent, true, true, false, false, false, 5, 5},
		{ModeNewWithCurrent, ModeFreshWithCurrent, true, true, false, true, false, 5, 7},
		{ModeFreshNoCurrent, ModeFreshNoCurrent, false, true, false, false, false, 6, 5},
		{ModeFreshWithCurrent, ModeFreshWithCurrent, false, true, false, true, false, 6, 6},
		{ModeMatureNoCurrent, ModeMatureNoCurrent, false, true, true, false, false, 8, 5},
		{ModeMatureWithCurrent, ModeMatureWithCurrent, false, true, true, true, true, 8, 3},
		{ModeLocked, ModeLocked, false, false, false, true, true, 7, 2},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := &Config{Mode: ptrString(tt.mode)}
			cfg.ApplyPreset()
			require.NoError(t, cfg.Validate())

			assert.Equal(t, tt.wantMode, cfg.GetMode())
			assert.Equal(t, tt.startFresh, cfg.GetStartFresh())
			assert.Equal(t, tt.updateTable, cfg.GetUpdateCorrectionTable())
			assert.Equal(t, tt.estimateBoatSpeed, cfg.GetEstimateBoatSpeed())
			assert.Equal(t, tt.assumeCurrent, cfg.GetAssumeCurrent())
			assert.Equal(t, tt.estimateCurrent, cfg.GetEstimateCurrent())
			assert.Equal(t, tt.correction, cfg.GetCorrectionStability())
			assert.Equal(t, tt.current, cfg.GetCurrentStability())
		})
	}
}

func TestApplyPresetManualKeepsSettings(t *testing.T) {
	cfg := &Config{
		Mode:                  ptrString(ModeManual),
		UpdateCorrectionTable: ptrBool(false),
		CorrectionStability:   ptrFloat64(11),
	}
	before := cfg.Clone()
	cfg.ApplyPreset()
	assert.Equal(t, before, cfg)
}

func TestNewModeDemotesOnce(t *testing.T) {
	cfg := &Config{Mode: ptrString(ModeNewWithCurrent)}
	cfg.ApplyPreset()
	assert.True(t, cfg.GetStartFresh())

	// A restart with the persisted config must not wipe the table again.
	cfg.ApplyPreset()
	assert.False(t, cfg.GetStartFresh())
	assert.Equal(t, ModeFreshWithCurrent, cfg.GetMode())
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	c := cfg.Clone()
	*c.MaxSpeed = 20
	*c.Mode = ModeLocked
	assert.Equal(t, 9.0, cfg.GetMaxSpeed())
	assert.Equal(t, ModeNewNoCurrent, cfg.GetMode())
}

func TestIsValidMode(t *testing.T) {
	for _, m := range Modes {
		assert.True(t, IsValidMode(m))
	}
	assert.False(t, IsValidMode(""))
	assert.False(t, IsValidMode("Locked correction table"))
}
