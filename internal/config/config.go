package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/speedcurrent.defaults.json"

// Config is the estimator configuration. Geometry is given in knots and
// degrees, the way it is entered by a sailor; the Get* accessors and the
// geometry helpers convert to SI. Omitted fields fall back to their defaults.
type Config struct {
	Mode *string `json:"mode,omitempty"`

	// Correction grid geometry
	MaxSpeed  *float64 `json:"max_speed,omitempty"`  // knots
	SpeedStep *float64 `json:"speed_step,omitempty"` // knots
	MaxHeel   *float64 `json:"max_heel,omitempty"`   // degrees
	HeelStep  *float64 `json:"heel_step,omitempty"`  // degrees

	// Behaviour flags
	PreventDuplication    *bool `json:"prevent_duplication,omitempty"`
	UpdateCorrectionTable *bool `json:"update_correction_table,omitempty"`
	EstimateBoatSpeed     *bool `json:"estimate_boat_speed,omitempty"`
	StartFresh            *bool `json:"start_fresh,omitempty"`
	AssumeCurrent         *bool `json:"assume_current,omitempty"`
	EstimateCurrent       *bool `json:"estimate_current,omitempty"`

	// Stabilities are decimal exponents: larger is slower and more trusted.
	CorrectionStability *float64 `json:"correction_stability,omitempty"`
	CurrentStability    *float64 `json:"current_stability,omitempty"`
	BoatSpeedStability  *float64 `json:"boat_speed_stability,omitempty"`

	// Stability gate
	GateTau            *string  `json:"gate_tau,omitempty"`         // duration string like "5s"
	GateCatchupTau     *string  `json:"gate_catchup_tau,omitempty"` // duration string like "500ms"
	StabilityThreshold *float64 `json:"stability_threshold,omitempty"`

	// Sampling and persistence
	SampleWindow             *string  `json:"sample_window,omitempty"`
	SaveInterval             *string  `json:"save_interval,omitempty"`
	VarianceFloor            *float64 `json:"variance_floor,omitempty"`
	ResampleOnGeometryChange *bool    `json:"resample_on_geometry_change,omitempty"`
	SnapshotRetention        *int     `json:"snapshot_retention,omitempty"` // 0 keeps all
	Heartbeat                *string  `json:"heartbeat,omitempty"`
	SourceID                 *string  `json:"source_id,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field populated with its default.
func DefaultConfig() *Config {
	c := EmptyConfig()
	return &Config{
		Mode:                     ptrString(c.GetMode()),
		MaxSpeed:                 ptrFloat64(c.GetMaxSpeed()),
		SpeedStep:                ptrFloat64(c.GetSpeedStep()),
		MaxHeel:                  ptrFloat64(c.GetMaxHeel()),
		HeelStep:                 ptrFloat64(c.GetHeelStep()),
		PreventDuplication:       ptrBool(c.GetPreventDuplication()),
		UpdateCorrectionTable:    ptrBool(c.GetUpdateCorrectionTable()),
		EstimateBoatSpeed:        ptrBool(c.GetEstimateBoatSpeed()),
		StartFresh:               ptrBool(c.GetStartFresh()),
		AssumeCurrent:            ptrBool(c.GetAssumeCurrent()),
		EstimateCurrent:          ptrBool(c.GetEstimateCurrent()),
		CorrectionStability:      ptrFloat64(c.GetCorrectionStability()),
		CurrentStability:         ptrFloat64(c.GetCurrentStability()),
		BoatSpeedStability:       ptrFloat64(c.GetBoatSpeedStability()),
		GateTau:                  ptrString(c.GetGateTau().String()),
		GateCatchupTau:           ptrString(c.GetGateCatchupTau().String()),
		StabilityThreshold:       ptrFloat64(c.GetStabilityThreshold()),
		SampleWindow:             ptrString(c.GetSampleWindow().String()),
		SaveInterval:             ptrString(c.GetSaveInterval().String()),
		VarianceFloor:            ptrFloat64(c.GetVarianceFloor()),
		ResampleOnGeometryChange: ptrBool(c.GetResampleOnGeometryChange()),
		SnapshotRetention:        ptrInt(c.GetSnapshotRetention()),
		Heartbeat:                ptrString(string(c.GetHeartbeat())),
		SourceID:                 ptrString(c.GetSourceID()),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes c to path as indented JSON, replacing the file
// atomically. It is used to persist a mode that demoted itself.
func SaveConfig(path string, c *Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')

	cleanPath := filepath.Clean(path)
	tmp, err := os.CreateTemp(filepath.Dir(cleanPath), ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), cleanPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/gridplot/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Mode != nil && !IsValidMode(*c.Mode) {
		return fmt.Errorf("unknown mode %q", *c.Mode)
	}

	if err := validateAxis("speed", c.GetMaxSpeed(), c.GetSpeedStep()); err != nil {
		return err
	}
	if err := validateAxis("heel", c.GetMaxHeel(), c.GetHeelStep()); err != nil {
		return err
	}
	if c.GetMaxHeel() >= 90 {
		return fmt.Errorf("max_heel must be below 90 degrees, got %g", c.GetMaxHeel())
	}

	if s := c.GetCorrectionStability(); s < 1 || s > 15 {
		return fmt.Errorf("correction_stability must be between 1 and 15, got %g", s)
	}
	if s := c.GetCurrentStability(); s < 0 || s > 10 {
		return fmt.Errorf("current_stability must be between 0 and 10, got %g", s)
	}
	if s := c.GetBoatSpeedStability(); !(s > 0) {
		return fmt.Errorf("boat_speed_stability must be positive, got %g", s)
	}
	if th := c.GetStabilityThreshold(); !(th > 0) || th >= 180 {
		return fmt.Errorf("stability_threshold must be in (0, 180) degrees, got %g", th)
	}
	if f := c.GetVarianceFloor(); !(f > 0) {
		return fmt.Errorf("variance_floor must be positive, got %g", f)
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"gate_tau", c.GateTau},
		{"gate_catchup_tau", c.GateCatchupTau},
		{"sample_window", c.SampleWindow},
		{"save_interval", c.SaveInterval},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	if n := c.GetSnapshotRetention(); n < 0 {
		return fmt.Errorf("snapshot_retention must not be negative, got %d", n)
	}
	if id := c.GetSourceID(); !validTalker(id) {
		return fmt.Errorf("source_id must be a two character talker id, got %q", id)
	}
	if c.Heartbeat != nil && *c.Heartbeat != "" && !sensor.IsHeartbeat(sensor.Kind(*c.Heartbeat)) {
		return fmt.Errorf("heartbeat must be one of %v, got %q", sensor.HeartbeatKinds, *c.Heartbeat)
	}
	return nil
}

func validTalker(id string) bool {
	if len(id) != 2 {
		return false
	}
	for _, r := range id {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func validateAxis(name string, max, step float64) error {
	if !(step > 0) {
		return fmt.Errorf("%s_step must be positive, got %g", name, step)
	}
	if !(max > 0) {
		return fmt.Errorf("max_%s must be positive, got %g", name, max)
	}
	n := max / step
	if math.Abs(n-math.Round(n)) > 1e-9*math.Max(1, n) {
		return fmt.Errorf("%s_step %g does not divide max_%s %g", name, step, name, max)
	}
	return nil
}

// SpeedAxis returns the grid row axis in m/s.
func (c *Config) SpeedAxis() grid.Axis {
	return grid.Axis{
		Min:  0,
		Max:  units.FromKnots(c.GetMaxSpeed()),
		Step: units.FromKnots(c.GetSpeedStep()),
	}
}

// HeelAxis returns the grid column axis in radians.
func (c *Config) HeelAxis() grid.Axis {
	maxHeel := units.FromDegrees(c.GetMaxHeel())
	return grid.Axis{
		Min:  -maxHeel,
		Max:  maxHeel,
		Step: units.FromDegrees(c.GetHeelStep()),
	}
}

// ProcessNoise returns the per-update drift q = 10^-correction_stability of
// a grid cell.
func (c *Config) ProcessNoise() float64 {
	return math.Pow(10, -c.GetCorrectionStability())
}

// CurrentSmootherStability returns 10^current_stability.
func (c *Config) CurrentSmootherStability() float64 {
	return math.Pow(10, c.GetCurrentStability())
}

// StabilityThresholdRadians returns the gate threshold in radians.
func (c *Config) StabilityThresholdRadians() float64 {
	return units.FromDegrees(c.GetStabilityThreshold())
}

// GetMode returns the mode or the default.
func (c *Config) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return ModeNewNoCurrent
	}
	return *c.Mode
}

// GetMaxSpeed returns max_speed in knots or the default.
func (c *Config) GetMaxSpeed() float64 {
	if c.MaxSpeed == nil {
		return 9
	}
	return *c.MaxSpeed
}

// GetSpeedStep returns speed_step in knots or the default.
func (c *Config) GetSpeedStep() float64 {
	if c.SpeedStep == nil {
		return 1
	}
	return *c.SpeedStep
}

// GetMaxHeel returns max_heel in degrees or the default.
func (c *Config) GetMaxHeel() float64 {
	if c.MaxHeel == nil {
		return 32
	}
	return *c.MaxHeel
}

// GetHeelStep returns heel_step in degrees or the default.
func (c *Config) GetHeelStep() float64 {
	if c.HeelStep == nil {
		return 8
	}
	return *c.HeelStep
}

// GetPreventDuplication returns the prevent_duplication value or the default.
func (c *Config) GetPreventDuplication() bool {
	if c.PreventDuplication == nil {
		return true
	}
	return *c.PreventDuplication
}

// GetUpdateCorrectionTable returns the update_correction_table value or the default.
func (c *Config) GetUpdateCorrectionTable() bool {
	if c.UpdateCorrectionTable == nil {
		return true
	}
	return *c.UpdateCorrectionTable
}

// GetEstimateBoatSpeed returns the estimate_boat_speed value or the default.
func (c *Config) GetEstimateBoatSpeed() bool {
	if c.EstimateBoatSpeed == nil {
		return true
	}
	return *c.EstimateBoatSpeed
}

// GetStartFresh returns the start_fresh value or the default.
func (c *Config) GetStartFresh() bool {
	if c.StartFresh == nil {
		return false
	}
	return *c.StartFresh
}

// GetAssumeCurrent returns the assume_current value or the default.
func (c *Config) GetAssumeCurrent() bool {
	if c.AssumeCurrent == nil {
		return false
	}
	return *c.AssumeCurrent
}

// GetEstimateCurrent returns the estimate_current value or the default.
func (c *Config) GetEstimateCurrent() bool {
	if c.EstimateCurrent == nil {
		return true
	}
	return *c.EstimateCurrent
}

// GetCorrectionStability returns the correction_stability value or the default.
func (c *Config) GetCorrectionStability() float64 {
	if c.CorrectionStability == nil {
		return 7
	}
	return *c.CorrectionStability
}

// GetCurrentStability returns the current_stability value or the default.
func (c *Config) GetCurrentStability() float64 {
	if c.CurrentStability == nil {
		return 5
	}
	return *c.CurrentStability
}

// GetBoatSpeedStability returns the boat_speed_stability value or the default.
func (c *Config) GetBoatSpeedStability() float64 {
	if c.BoatSpeedStability == nil {
		return 10
	}
	return *c.BoatSpeedStability
}

// GetGateTau returns the slow gate time constant.
func (c *Config) GetGateTau() time.Duration {
	return parseDuration(c.GateTau, 5*time.Second)
}

// GetGateCatchupTau returns the fast gate time constant.
func (c *Config) GetGateCatchupTau() time.Duration {
	return parseDuration(c.GateCatchupTau, 500*time.Millisecond)
}

// GetStabilityThreshold returns the gate threshold in degrees.
func (c *Config) GetStabilityThreshold() float64 {
	if c.StabilityThreshold == nil {
		return 5
	}
	return *c.StabilityThreshold
}

// GetSampleWindow returns the window of the sample statistics.
func (c *Config) GetSampleWindow() time.Duration {
	return parseDuration(c.SampleWindow, 10*time.Second)
}

// GetSaveInterval returns how often the grid is persisted.
func (c *Config) GetSaveInterval() time.Duration {
	return parseDuration(c.SaveInterval, 5*time.Minute)
}

// GetVarianceFloor returns the resampling variance floor.
func (c *Config) GetVarianceFloor() float64 {
	if c.VarianceFloor == nil {
		return grid.DefaultVarianceFloor
	}
	return *c.VarianceFloor
}

// GetResampleOnGeometryChange returns whether a persisted grid of other
// geometry is resampled rather than discarded.
func (c *Config) GetResampleOnGeometryChange() bool {
	if c.ResampleOnGeometryChange == nil {
		return false
	}
	return *c.ResampleOnGeometryChange
}

// GetSnapshotRetention returns how many grid snapshots are kept after each
// save. Zero keeps them all.
func (c *Config) GetSnapshotRetention() int {
	if c.SnapshotRetention == nil {
		return 100
	}
	return *c.SnapshotRetention
}

// GetHeartbeat returns the sample kind that triggers a fusion cycle.
func (c *Config) GetHeartbeat() sensor.Kind {
	if c.Heartbeat == nil || *c.Heartbeat == "" {
		return sensor.SpeedThroughWater
	}
	return sensor.Kind(*c.Heartbeat)
}

// GetSourceID returns the NMEA talker id of emitted sentences. Incoming
// samples from this talker are the service's own output and are ignored.
func (c *Config) GetSourceID() string {
	if c.SourceID == nil || *c.SourceID == "" {
		return "SC"
	}
	return *c.SourceID
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
