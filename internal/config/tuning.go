// Package config loads factor tuning parameters from JSON files.
// Fields are pointer-typed so partial configs merge over defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FactorTuning holds the tunable parameters of the measurement and
// motion factors. The same JSON schema serves startup configuration and
// offline experiment sweeps, so all fields are optional.
type FactorTuning struct {
	// Detection factor params
	Gamma             *float64 `json:"gamma,omitempty"`
	DetectionVariance *float64 `json:"detection_variance,omitempty"`
	WeightFloor       *float64 `json:"weight_floor,omitempty"`
	TightCoupling     *bool    `json:"tight_coupling,omitempty"`

	// Motion factor params (per-axis sigmas, rotation then translation)
	ConstantVelocitySigmas *[]float64 `json:"constant_velocity_sigmas,omitempty"`
	StablePoseSigmas       *[]float64 `json:"stable_pose_sigmas,omitempty"`
}

// Resolved is a FactorTuning with every field populated.
type Resolved struct {
	Gamma                  *float64 // nil means auto-computed per factor
	DetectionVariance      float64
	WeightFloor            float64
	TightCoupling          bool
	ConstantVelocitySigmas []float64
	StablePoseSigmas       []float64
}

// Defaults returns the resolved defaults used when no config is given.
func Defaults() Resolved {
	return Resolved{
		Gamma:                  nil,
		DetectionVariance:      1e-2,
		WeightFloor:            1e-3,
		TightCoupling:          true,
		ConstantVelocitySigmas: []float64{0.1, 0.1, 0.1, 0.5, 0.5, 0.5},
		StablePoseSigmas:       []float64{0.05, 0.05, 0.05, 0.2, 0.2, 0.2},
	}
}

// Load reads a FactorTuning from a JSON file. The file must have a
// .json extension and stay under the max file size. Omitted fields keep
// their defaults, so partial configs are safe.
func Load(path string) (*FactorTuning, error) {
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

	var tuning FactorTuning
	if err := json.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return &tuning, nil
}

// Validate checks that all set fields are within valid operating ranges.
func (t *FactorTuning) Validate() error {
	if t.DetectionVariance != nil && *t.DetectionVariance <= 0 {
		return fmt.Errorf("detection_variance must be positive, got %v", *t.DetectionVariance)
	}
	if t.WeightFloor != nil && (*t.WeightFloor <= 0 || *t.WeightFloor > 1) {
		return fmt.Errorf("weight_floor must be in (0, 1], got %v", *t.WeightFloor)
	}
	for name, sigmas := range map[string]*[]float64{
		"constant_velocity_sigmas": t.ConstantVelocitySigmas,
		"stable_pose_sigmas":       t.StablePoseSigmas,
	} {
		if sigmas == nil {
			continue
		}
		if len(*sigmas) != 6 {
			return fmt.Errorf("%s must have 6 entries, got %d", name, len(*sigmas))
		}
		for i, s := range *sigmas {
			if s <= 0 {
				return fmt.Errorf("%s[%d] must be positive, got %v", name, i, s)
			}
		}
	}
	return nil
}

// Apply merges the set fields of t over base and returns the result.
func (t *FactorTuning) Apply(base Resolved) Resolved {
	out := base
	if t.Gamma != nil {
		g := *t.Gamma
		out.Gamma = &g
	}
	if t.DetectionVariance != nil {
		out.DetectionVariance = *t.DetectionVariance
	}
	if t.WeightFloor != nil {
		out.WeightFloor = *t.WeightFloor
	}
	if t.TightCoupling != nil {
		out.TightCoupling = *t.TightCoupling
	}
	if t.ConstantVelocitySigmas != nil {
		out.ConstantVelocitySigmas = append([]float64(nil), *t.ConstantVelocitySigmas...)
	}
	if t.StablePoseSigmas != nil {
		out.StablePoseSigmas = append([]float64(nil), *t.StablePoseSigmas...)
	}
	return out
}
