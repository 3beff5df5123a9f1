package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avfusion/radar-fusion/internal/security"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the engine's full set of tunables. Every field is a
// pointer so a partial JSON document — as delivered by the reconfiguration
// side channel, one parameter at a time — only overrides what it sets; the
// Get* accessors supply the rest from the reference defaults.
//
// Changing any of these fields and reloading invalidates the track table:
// the engine must be reinitialized before its next cycle (see
// internal/reconfig).
type TuningConfig struct {
	// Radar measurement noise.
	SigmaBase    *float64 `json:"sigma_base,omitempty"`
	SigmaRange   *float64 `json:"sigma_range,omitempty"`
	SigmaDoppler *float64 `json:"sigma_doppler,omitempty"`
	SigmaBearing *float64 `json:"sigma_bearing,omitempty"`

	// Bearing-confidence falloff.
	MaxBearingConfidence   *float64 `json:"max_bearing_confidence,omitempty"`
	MinBearingConfidence   *float64 `json:"min_bearing_confidence,omitempty"`
	SensorWeakBearingArea  *float64 `json:"sensor_weak_bearing_area,omitempty"`

	// Process noise stddevs used to build Q at init.
	QSigmaX  *float64 `json:"q_sigma_x,omitempty"`
	QSigmaY  *float64 `json:"q_sigma_y,omitempty"`
	QSigmaVX *float64 `json:"q_sigma_vx,omitempty"`
	QSigmaVY *float64 `json:"q_sigma_vy,omitempty"`

	// Near-duplicate pruning thresholds.
	PruneLimitX  *float64 `json:"prune_limit_x,omitempty"`
	PruneLimitY  *float64 `json:"prune_limit_y,omitempty"`
	PruneLimitVX *float64 `json:"prune_limit_vx,omitempty"`
	PruneLimitVY *float64 `json:"prune_limit_vy,omitempty"`

	// Gating weights and acceptance threshold.
	GatingWeightX           *float64 `json:"gating_weight_x,omitempty"`
	GatingWeightY           *float64 `json:"gating_weight_y,omitempty"`
	GatingWeightVX          *float64 `json:"gating_weight_vx,omitempty"`
	GatingWeightVY          *float64 `json:"gating_weight_vy,omitempty"`
	AcceptanceGateSumFactor *float64 `json:"acceptance_gate_sum_factor,omitempty"`

	// Lifecycle.
	MaxCoastingCycles    *int `json:"max_coasting_cycles,omitempty"`
	MinLifetimeTxCycles  *int `json:"min_lifetime_tx_cycles,omitempty"`

	// Cycle and capacity, fixed at init.
	CycleTime        *float64 `json:"cycle_time,omitempty"`
	MaxTracks        *int     `json:"max_tracks,omitempty"`
	MaxMeasurements  *int     `json:"max_measurements,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	if err := validateConfigPath(cleanPath); err != nil {
		return nil, err
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath rejects config paths that resolve outside the working
// directory tree or the OS temp directory, using internal/security's
// traversal check. The allowed set includes a few levels of ancestor
// directories so MustLoadDefaultConfig's "../../config/tuning.defaults.json"-
// style search candidates still resolve when tests run from a nested
// package directory, and os.TempDir() so configs written to t.TempDir() in
// tests still load.
func validateConfigPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	allowedDirs := []string{cwd, os.TempDir()}
	ancestor := cwd
	for i := 0; i < 5; i++ {
		ancestor = filepath.Dir(ancestor)
		allowedDirs = append(allowedDirs, ancestor)
	}
	if err := security.ValidatePathWithinAllowedDirs(path, allowedDirs); err != nil {
		return fmt.Errorf("config path rejected: %w", err)
	}
	return nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
		"../../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any set fields hold structurally sane values.
func (c *TuningConfig) Validate() error {
	if c.SigmaBase != nil && *c.SigmaBase <= 0 {
		return fmt.Errorf("sigma_base must be positive, got %f", *c.SigmaBase)
	}
	if c.MaxBearingConfidence != nil && c.MinBearingConfidence != nil &&
		*c.MinBearingConfidence > *c.MaxBearingConfidence {
		return fmt.Errorf("min_bearing_confidence (%f) must not exceed max_bearing_confidence (%f)",
			*c.MinBearingConfidence, *c.MaxBearingConfidence)
	}
	if c.MaxCoastingCycles != nil && *c.MaxCoastingCycles < 0 {
		return fmt.Errorf("max_coasting_cycles must be non-negative, got %d", *c.MaxCoastingCycles)
	}
	if c.MinLifetimeTxCycles != nil && *c.MinLifetimeTxCycles < 0 {
		return fmt.Errorf("min_lifetime_tx_cycles must be non-negative, got %d", *c.MinLifetimeTxCycles)
	}
	if c.MaxTracks != nil && *c.MaxTracks <= 0 {
		return fmt.Errorf("max_tracks must be positive, got %d", *c.MaxTracks)
	}
	if c.CycleTime != nil && *c.CycleTime <= 0 {
		return fmt.Errorf("cycle_time must be positive, got %f", *c.CycleTime)
	}
	return nil
}

func (c *TuningConfig) GetSigmaBase() float64 {
	if c.SigmaBase == nil {
		return 0.1
	}
	return *c.SigmaBase
}

func (c *TuningConfig) GetSigmaRange() float64 {
	if c.SigmaRange == nil {
		return 0.5
	}
	return *c.SigmaRange
}

func (c *TuningConfig) GetSigmaDoppler() float64 {
	if c.SigmaDoppler == nil {
		return 1.5
	}
	return *c.SigmaDoppler
}

func (c *TuningConfig) GetSigmaBearing() float64 {
	if c.SigmaBearing == nil {
		return 3.0
	}
	return *c.SigmaBearing
}

func (c *TuningConfig) GetMaxBearingConfidence() float64 {
	if c.MaxBearingConfidence == nil {
		return 1.0
	}
	return *c.MaxBearingConfidence
}

func (c *TuningConfig) GetMinBearingConfidence() float64 {
	if c.MinBearingConfidence == nil {
		return 0.7
	}
	return *c.MinBearingConfidence
}

func (c *TuningConfig) GetSensorWeakBearingArea() float64 {
	if c.SensorWeakBearingArea == nil {
		return 10.0
	}
	return *c.SensorWeakBearingArea
}

func (c *TuningConfig) GetQSigmaX() float64 {
	if c.QSigmaX == nil {
		return 1.5
	}
	return *c.QSigmaX
}

func (c *TuningConfig) GetQSigmaY() float64 {
	if c.QSigmaY == nil {
		return 1.5
	}
	return *c.QSigmaY
}

func (c *TuningConfig) GetQSigmaVX() float64 {
	if c.QSigmaVX == nil {
		return 3.0
	}
	return *c.QSigmaVX
}

func (c *TuningConfig) GetQSigmaVY() float64 {
	if c.QSigmaVY == nil {
		return 3.0
	}
	return *c.QSigmaVY
}

func (c *TuningConfig) GetPruneLimitX() float64 {
	if c.PruneLimitX == nil {
		return 2.0
	}
	return *c.PruneLimitX
}

func (c *TuningConfig) GetPruneLimitY() float64 {
	if c.PruneLimitY == nil {
		return 2.0
	}
	return *c.PruneLimitY
}

func (c *TuningConfig) GetPruneLimitVX() float64 {
	if c.PruneLimitVX == nil {
		return 5.0
	}
	return *c.PruneLimitVX
}

func (c *TuningConfig) GetPruneLimitVY() float64 {
	if c.PruneLimitVY == nil {
		return 5.0
	}
	return *c.PruneLimitVY
}

func (c *TuningConfig) GetGatingWeightX() float64 {
	if c.GatingWeightX == nil {
		return 10.0
	}
	return *c.GatingWeightX
}

func (c *TuningConfig) GetGatingWeightY() float64 {
	if c.GatingWeightY == nil {
		return 10.0
	}
	return *c.GatingWeightY
}

func (c *TuningConfig) GetGatingWeightVX() float64 {
	if c.GatingWeightVX == nil {
		return 30.0
	}
	return *c.GatingWeightVX
}

func (c *TuningConfig) GetGatingWeightVY() float64 {
	if c.GatingWeightVY == nil {
		return 30.0
	}
	return *c.GatingWeightVY
}

func (c *TuningConfig) GetAcceptanceGateSumFactor() float64 {
	if c.AcceptanceGateSumFactor == nil {
		return 1.0
	}
	return *c.AcceptanceGateSumFactor
}

func (c *TuningConfig) GetMaxCoastingCycles() int {
	if c.MaxCoastingCycles == nil {
		return 20
	}
	return *c.MaxCoastingCycles
}

func (c *TuningConfig) GetMinLifetimeTxCycles() int {
	if c.MinLifetimeTxCycles == nil {
		return 3
	}
	return *c.MinLifetimeTxCycles
}

func (c *TuningConfig) GetCycleTime() float64 {
	if c.CycleTime == nil {
		return 0.04
	}
	return *c.CycleTime
}

func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 16
	}
	return *c.MaxTracks
}

func (c *TuningConfig) GetMaxMeasurements() int {
	if c.MaxMeasurements == nil {
		return 24
	}
	return *c.MaxMeasurements
}
