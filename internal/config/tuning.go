// Package config loads deployment tuning parameters. Fields are
// pointers so a partial JSON file overrides only what it names; omitted
// fields keep their compiled-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
)

// TuningConfig is the root tuning document. The extractor thresholds
// are deployment parameters (crop spacing, sensor mount), not model
// state, which is why they live here and not in the checkpoint.
type TuningConfig struct {
	// Extractor params
	MinRowPoints      *int     `json:"min_row_points,omitempty"`
	FullSupportPoints *int     `json:"full_support_points,omitempty"`
	MinAnisotropy     *float64 `json:"min_anisotropy,omitempty"`
	MaxHeadingDeg     *float64 `json:"max_heading_deg,omitempty"`
	ResidualScaleM    *float64 `json:"residual_scale_m,omitempty"`

	// Pipeline params
	SamplingSeed *int64 `json:"sampling_seed,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file stay nil, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable. A bad value is
// fatal at startup, never discovered mid-frame.
func (c *TuningConfig) Validate() error {
	if c.MinRowPoints != nil && *c.MinRowPoints < 2 {
		return fmt.Errorf("min_row_points must be at least 2 (a line fit needs two points), got %d", *c.MinRowPoints)
	}
	if c.FullSupportPoints != nil && *c.FullSupportPoints < 1 {
		return fmt.Errorf("full_support_points must be positive, got %d", *c.FullSupportPoints)
	}
	if c.MinAnisotropy != nil && *c.MinAnisotropy < 1 {
		return fmt.Errorf("min_anisotropy must be at least 1, got %f", *c.MinAnisotropy)
	}
	if c.MaxHeadingDeg != nil && (*c.MaxHeadingDeg <= 0 || *c.MaxHeadingDeg > 90) {
		return fmt.Errorf("max_heading_deg must be in (0, 90], got %f", *c.MaxHeadingDeg)
	}
	if c.ResidualScaleM != nil && *c.ResidualScaleM <= 0 {
		return fmt.Errorf("residual_scale_m must be positive, got %f", *c.ResidualScaleM)
	}
	return nil
}

// ApplyExtract overlays any set extractor fields onto p.
func (c *TuningConfig) ApplyExtract(p *extract.Params) {
	if c == nil {
		return
	}
	if c.MinRowPoints != nil {
		p.MinRowPoints = *c.MinRowPoints
	}
	if c.FullSupportPoints != nil {
		p.FullSupportPoints = *c.FullSupportPoints
	}
	if c.MinAnisotropy != nil {
		p.MinAnisotropy = *c.MinAnisotropy
	}
	if c.MaxHeadingDeg != nil {
		p.MaxHeadingDeg = *c.MaxHeadingDeg
	}
	if c.ResidualScaleM != nil {
		p.ResidualScaleM = *c.ResidualScaleM
	}
}

// Seed returns the configured sampling seed, or fallback when unset.
func (c *TuningConfig) Seed(fallback int64) int64 {
	if c == nil || c.SamplingSeed == nil {
		return fallback
	}
	return *c.SamplingSeed
}
