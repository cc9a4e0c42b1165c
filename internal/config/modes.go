package config

// Operating modes.
const (
	ModeNewNoCurrent      = "new-no-current"
	ModeNewWithCurrent    = "new-with-current"
	ModeFreshNoCurrent    = "fresh-no-current"
	ModeFreshWithCurrent  = "fresh-with-current"
	ModeMatureNoCurrent   = "mature-no-current"
	ModeMatureWithCurrent = "mature-with-current"
	ModeLocked            = "locked"
	ModeManual            = "manual"
)

// Modes lists the valid modes in calibration order.
var Modes = []string{
	ModeNewNoCurrent,
	ModeNewWithCurrent,
	ModeFreshNoCurrent,
	ModeFreshWithCurrent,
	ModeMatureNoCurrent,
	ModeMatureWithCurrent,
	ModeLocked,
	ModeManual,
}

// IsValidMode reports whether mode is one of Modes.
func IsValidMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

type preset struct {
	startFresh          bool
	updateTable         bool
	estimateBoatSpeed   bool
	assumeCurrent       bool
	estimateCurrent     bool
	correctionStability *float64
	currentStability    *float64
	next                string
}

var presets = map[string]preset{
	ModeNewNoCurrent: {
		startFresh: true, updateTable: true,
		correctionStability: ptrFloat64(5),
		next:                ModeFreshNoCurrent,
	},
	ModeNewWithCurrent: {
		startFresh: true, updateTable: true, assumeCurrent: true,
		correctionStability: ptrFloat64(5), currentStability: ptrFloat64(7),
		next: ModeFreshWithCurrent,
	},
	ModeFreshNoCurrent: {
		updateTable:         true,
		correctionStability: ptrFloat64(6),
	},
	ModeFreshWithCurrent: {
		updateTable: true, assumeCurrent: true,
		correctionStability: ptrFloat64(6), currentStability: ptrFloat64(6),
	},
	ModeMatureNoCurrent: {
		updateTable: true, estimateBoatSpeed: true,
		correctionStability: ptrFloat64(8),
	},
	ModeMatureWithCurrent: {
		updateTable: true, estimateBoatSpeed: true, assumeCurrent: true, estimateCurrent: true,
		correctionStability: ptrFloat64(8), currentStability: ptrFloat64(3),
	},
	ModeLocked: {
		assumeCurrent: true, estimateCurrent: true,
		currentStability: ptrFloat64(2),
	},
}

// ApplyPreset overwrites the behaviour flags and stabilities with those of
// the configured mode. The two new-* modes ask for a fresh table once and
// then demote themselves to the matching fresh-* mode, so persisting the
// returned config does not wipe the table again on the next start. Manual
// mode leaves everything as configured.
func (c *Config) ApplyPreset() {
	p, ok := presets[c.GetMode()]
	if !ok {
		return
	}
	c.StartFresh = ptrBool(p.startFresh)
	c.UpdateCorrectionTable = ptrBool(p.updateTable)
	c.EstimateBoatSpeed = ptrBool(p.estimateBoatSpeed)
	c.AssumeCurrent = ptrBool(p.assumeCurrent)
	c.EstimateCurrent = ptrBool(p.estimateCurrent)
	if p.correctionStability != nil {
		c.CorrectionStability = ptrFloat64(*p.correctionStability)
	}
	if p.currentStability != nil {
		c.CurrentStability = ptrFloat64(*p.currentStability)
	}
	if p.next != "" {
		c.Mode = ptrString(p.next)
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	clonePtr(&out.Mode)
	clonePtr(&out.MaxSpeed)
	clonePtr(&out.SpeedStep)
	clonePtr(&out.MaxHeel)
	clonePtr(&out.HeelStep)
	clonePtr(&out.PreventDuplication)
	clonePtr(&out.UpdateCorrectionTable)
	clonePtr(&out.EstimateBoatSpeed)
	clonePtr(&out.StartFresh)
	clonePtr(&out.AssumeCurrent)
	clonePtr(&out.EstimateCurrent)
	clonePtr(&out.CorrectionStability)
	clonePtr(&out.CurrentStability)
	clonePtr(&out.BoatSpeedStability)
	clonePtr(&out.GateTau)
	clonePtr(&out.GateCatchupTau)
	clonePtr(&out.StabilityThreshold)
	clonePtr(&out.SampleWindow)
	clonePtr(&out.SaveInterval)
	clonePtr(&out.VarianceFloor)
	clonePtr(&out.ResampleOnGeometryChange)
	clonePtr(&out.SnapshotRetention)
	clonePtr(&out.Heartbeat)
	clonePtr(&out.SourceID)
	return &out
}

func clonePtr[T any](p **T) {
	if *p == nil {
		return
	}
	v := **p
	*p = &v
}
