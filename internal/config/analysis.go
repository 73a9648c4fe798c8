package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// Defaults applied when a key is absent from the configuration file.
const (
	DefaultV0CosPA           = 0.995
	DefaultRapidity          = 0.5
	DefaultNSigTPC           = 10.0
	DefaultEventSelection    = true
	DefaultProgressEvery     = 1000
	DefaultEfficiencyMassMin = 0.4
	DefaultEfficiencyMassMax = 0.6
	DefaultConfidenceLevel   = 0.683
)

// AnalysisConfig is the on-disk configuration of an analysis run. The
// selection keys keep the names used by existing analysis configurations
// (v0cospa, rapidity, nSigTPC, eventSelection) so files can be shared.
type AnalysisConfig struct {
	// Candidate selection
	V0CosPA        *float64 `json:"v0cospa,omitempty"`
	Rapidity       *float64 `json:"rapidity,omitempty"`
	NSigTPC        *float64 `json:"nSigTPC,omitempty"`
	EventSelection *bool    `json:"eventSelection,omitempty"`

	// LegacyPosITSStatus fills the positive daughter ITS status from the
	// negative daughter, matching histograms produced before the fix.
	LegacyPosITSStatus *bool `json:"legacy_pos_its_status,omitempty"`

	// Pipeline
	SkipInvalidEvents *bool `json:"skip_invalid_events,omitempty"`
	ProgressEvery     *int  `json:"progress_every,omitempty"`

	// Efficiency extraction
	EfficiencyMassMin *float64 `json:"efficiency_mass_min,omitempty"`
	EfficiencyMassMax *float64 `json:"efficiency_mass_max,omitempty"`
	ConfidenceLevel   *float64 `json:"confidence_level,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns a config with every key unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every key set to its default.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		V0CosPA:            ptrFloat64(DefaultV0CosPA),
		Rapidity:           ptrFloat64(DefaultRapidity),
		NSigTPC:            ptrFloat64(DefaultNSigTPC),
		EventSelection:     ptrBool(DefaultEventSelection),
		LegacyPosITSStatus: ptrBool(false),
		SkipInvalidEvents:  ptrBool(false),
		ProgressEvery:      ptrInt(DefaultProgressEvery),
		EfficiencyMassMin:  ptrFloat64(DefaultEfficiencyMassMin),
		EfficiencyMassMax:  ptrFloat64(DefaultEfficiencyMassMax),
		ConfidenceLevel:    ptrFloat64(DefaultConfidenceLevel),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// Keys omitted from the file fall back to their defaults through the Get*
// accessors, so partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ subdirectories
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.V0CosPA != nil {
		if *c.V0CosPA < -1 || *c.V0CosPA > 1 {
			return fmt.Errorf("v0cospa must be between -1 and 1, got %f", *c.V0CosPA)
		}
	}
	if c.Rapidity != nil && *c.Rapidity < 0 {
		return fmt.Errorf("rapidity must be non-negative, got %f", *c.Rapidity)
	}
	if c.NSigTPC != nil && *c.NSigTPC < 0 {
		return fmt.Errorf("nSigTPC must be non-negative, got %f", *c.NSigTPC)
	}
	if c.ProgressEvery != nil && *c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be non-negative, got %d", *c.ProgressEvery)
	}
	if c.GetEfficiencyMassMin() >= c.GetEfficiencyMassMax() {
		return fmt.Errorf("efficiency mass window is empty: [%f, %f]",
			c.GetEfficiencyMassMin(), c.GetEfficiencyMassMax())
	}
	if c.ConfidenceLevel != nil {
		if *c.ConfidenceLevel <= 0 || *c.ConfidenceLevel >= 1 {
			return fmt.Errorf("confidence_level must be in (0, 1), got %f", *c.ConfidenceLevel)
		}
	}
	return nil
}

// GetV0CosPA returns the minimum cosine of pointing angle.
func (c *AnalysisConfig) GetV0CosPA() float64 {
	if c.V0CosPA == nil {
		return DefaultV0CosPA
	}
	return *c.V0CosPA
}

// GetRapidity returns the maximum absolute rapidity.
func (c *AnalysisConfig) GetRapidity() float64 {
	if c.Rapidity == nil {
		return DefaultRapidity
	}
	return *c.Rapidity
}

// GetNSigTPC returns the maximum TPC pion nσ for both daughters.
func (c *AnalysisConfig) GetNSigTPC() float64 {
	if c.NSigTPC == nil {
		return DefaultNSigTPC
	}
	return *c.NSigTPC
}

// GetEventSelection reports whether the event-quality gate is enabled.
func (c *AnalysisConfig) GetEventSelection() bool {
	if c.EventSelection == nil {
		return DefaultEventSelection
	}
	return *c.EventSelection
}

func (c *AnalysisConfig) GetLegacyPosITSStatus() bool {
	if c.LegacyPosITSStatus == nil {
		return false
	}
	return *c.LegacyPosITSStatus
}

func (c *AnalysisConfig) GetSkipInvalidEvents() bool {
	if c.SkipInvalidEvents == nil {
		return false
	}
	return *c.SkipInvalidEvents
}

// GetProgressEvery returns the progress logging period in events (0 disables).
func (c *AnalysisConfig) GetProgressEvery() int {
	if c.ProgressEvery == nil {
		return DefaultProgressEvery
	}
	return *c.ProgressEvery
}

func (c *AnalysisConfig) GetEfficiencyMassMin() float64 {
	if c.EfficiencyMassMin == nil {
		return DefaultEfficiencyMassMin
	}
	return *c.EfficiencyMassMin
}

func (c *AnalysisConfig) GetEfficiencyMassMax() float64 {
	if c.EfficiencyMassMax == nil {
		return DefaultEfficiencyMassMax
	}
	return *c.EfficiencyMassMax
}

func (c *AnalysisConfig) GetConfidenceLevel() float64 {
	if c.ConfidenceLevel == nil {
		return DefaultConfidenceLevel
	}
	return *c.ConfidenceLevel
}

// Selection is the immutable set of candidate and event cuts handed to the
// analysis task.
type Selection struct {
	V0CosPA            float64 `json:"v0cospa"`
	Rapidity           float64 `json:"rapidity"`
	NSigTPC            float64 `json:"nSigTPC"`
	EventSelection     bool    `json:"eventSelection"`
	LegacyPosITSStatus bool    `json:"legacy_pos_its_status"`
}

// DefaultSelection returns the selection built from an empty config.
func DefaultSelection() Selection {
	return EmptyAnalysisConfig().Selection()
}

// Selection resolves the configured cuts.
func (c *AnalysisConfig) Selection() Selection {
	return Selection{
		V0CosPA:            c.GetV0CosPA(),
		Rapidity:           c.GetRapidity(),
		NSigTPC:            c.GetNSigTPC(),
		EventSelection:     c.GetEventSelection(),
		LegacyPosITSStatus: c.GetLegacyPosITSStatus(),
	}
}

// Resolved returns a copy with every key populated, suitable for recording
// alongside run results.
func (c *AnalysisConfig) Resolved() *AnalysisConfig {
	return &AnalysisConfig{
		V0CosPA:            ptrFloat64(c.GetV0CosPA()),
		Rapidity:           ptrFloat64(c.GetRapidity()),
		NSigTPC:            ptrFloat64(c.GetNSigTPC()),
		EventSelection:     ptrBool(c.GetEventSelection()),
		LegacyPosITSStatus: ptrBool(c.GetLegacyPosITSStatus()),
		SkipInvalidEvents:  ptrBool(c.GetSkipInvalidEvents()),
		ProgressEvery:      ptrInt(c.GetProgressEvery()),
		EfficiencyMassMin:  ptrFloat64(c.GetEfficiencyMassMin()),
		EfficiencyMassMax:  ptrFloat64(c.GetEfficiencyMassMax()),
		ConfidenceLevel:    ptrFloat64(c.GetConfidenceLevel()),
	}
}
