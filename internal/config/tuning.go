// Package config loads tuning parameters and named validation profiles.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for validation tuning
// parameters. Fields omitted from the JSON retain their defaults, so partial
// configs are safe.
type TuningConfig struct {
	// Alignment params
	ToleranceMs            *float64 `json:"tolerance_ms,omitempty"`
	AlignmentMethod        *string  `json:"alignment_method,omitempty"`
	StrictClassMatching    *bool    `json:"strict_class_matching,omitempty"`
	ClusterWindowMs        *float64 `json:"cluster_window_ms,omitempty"`
	BurstDensityPerSec     *float64 `json:"burst_density_per_sec,omitempty"`
	ConfidenceVarianceHigh *float64 `json:"confidence_variance_high,omitempty"`

	// Latency analyzer params
	LatencyCapacity        *int               `json:"latency_capacity,omitempty"`
	LatencyPercentile      *float64           `json:"latency_percentile,omitempty"`
	LatencyMinSamples      *int               `json:"latency_min_samples,omitempty"`
	LatencyRecomputeBatch  *int               `json:"latency_recompute_batch,omitempty"`
	BaseThresholdMs        *float64           `json:"base_threshold_ms,omitempty"`
	BaseThresholdMsByClass map[string]float64 `json:"base_threshold_ms_by_class,omitempty"`

	// Orchestrator params
	Workers      *int    `json:"workers,omitempty"`
	FetchRetries *int    `json:"fetch_retries,omitempty"`
	Profile      *string `json:"profile,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must have
// a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

// Validate checks that set values are usable.
func (c *TuningConfig) Validate() error {
	if c.ToleranceMs != nil && *c.ToleranceMs <= 0 {
		return fmt.Errorf("tolerance_ms must be positive, got %f", *c.ToleranceMs)
	}
	if c.LatencyPercentile != nil {
		if *c.LatencyPercentile <= 0 || *c.LatencyPercentile >= 1 {
			return fmt.Errorf("latency_percentile must be in (0, 1), got %f", *c.LatencyPercentile)
		}
	}
	if c.LatencyCapacity != nil && *c.LatencyCapacity <= 0 {
		return fmt.Errorf("latency_capacity must be positive, got %d", *c.LatencyCapacity)
	}
	if c.Workers != nil && *c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}
	if c.FetchRetries != nil && *c.FetchRetries < 0 {
		return fmt.Errorf("fetch_retries must be non-negative, got %d", *c.FetchRetries)
	}
	for class, ms := range c.BaseThresholdMsByClass {
		if ms <= 0 {
			return fmt.Errorf("base_threshold_ms_by_class[%s] must be positive, got %f", class, ms)
		}
	}
	return nil
}

// GetToleranceMs returns the tolerance_ms value or the default.
func (c *TuningConfig) GetToleranceMs() float64 {
	if c.ToleranceMs == nil {
		return 100.0
	}
	return *c.ToleranceMs
}

// GetAlignmentMethod returns the alignment_method value or the default.
func (c *TuningConfig) GetAlignmentMethod() string {
	if c.AlignmentMethod == nil {
		return "nearest_neighbor"
	}
	return *c.AlignmentMethod
}

// GetStrictClassMatching returns the strict_class_matching value or the default.
func (c *TuningConfig) GetStrictClassMatching() bool {
	if c.StrictClassMatching == nil {
		return true
	}
	return *c.StrictClassMatching
}

// GetClusterWindowMs returns the cluster_window_ms value or the default.
func (c *TuningConfig) GetClusterWindowMs() float64 {
	if c.ClusterWindowMs == nil {
		return 50.0
	}
	return *c.ClusterWindowMs
}

// GetBurstDensityPerSec returns the burst_density_per_sec value or the default.
func (c *TuningConfig) GetBurstDensityPerSec() float64 {
	if c.BurstDensityPerSec == nil {
		return 10.0
	}
	return *c.BurstDensityPerSec
}

// GetConfidenceVarianceHigh returns the confidence_variance_high value or the default.
func (c *TuningConfig) GetConfidenceVarianceHigh() float64 {
	if c.ConfidenceVarianceHigh == nil {
		return 0.05
	}
	return *c.ConfidenceVarianceHigh
}

// GetLatencyCapacity returns the latency_capacity value or the default.
func (c *TuningConfig) GetLatencyCapacity() int {
	if c.LatencyCapacity == nil {
		return 1000
	}
	return *c.LatencyCapacity
}

// GetLatencyPercentile returns the latency_percentile value or the default.
func (c *TuningConfig) GetLatencyPercentile() float64 {
	if c.LatencyPercentile == nil {
		return 0.95
	}
	return *c.LatencyPercentile
}

// GetLatencyMinSamples returns the latency_min_samples value or the default.
func (c *TuningConfig) GetLatencyMinSamples() int {
	if c.LatencyMinSamples == nil {
		return 30
	}
	return *c.LatencyMinSamples
}

// GetLatencyRecomputeBatch returns the latency_recompute_batch value or the default.
func (c *TuningConfig) GetLatencyRecomputeBatch() int {
	if c.LatencyRecomputeBatch == nil {
		return 50
	}
	return *c.LatencyRecomputeBatch
}

// GetBaseThresholdMs returns the base_threshold_ms value or the default.
func (c *TuningConfig) GetBaseThresholdMs() float64 {
	if c.BaseThresholdMs == nil {
		return 200.0
	}
	return *c.BaseThresholdMs
}

// GetBaseThresholdMsByClass returns a copy of the per-class base threshold
// overrides, or nil when none are configured.
func (c *TuningConfig) GetBaseThresholdMsByClass() map[string]float64 {
	if len(c.BaseThresholdMsByClass) == 0 {
		return nil
	}
	out := make(map[string]float64, len(c.BaseThresholdMsByClass))
	for class, ms := range c.BaseThresholdMsByClass {
		out[class] = ms
	}
	return out
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetFetchRetries returns the fetch_retries value or the default.
func (c *TuningConfig) GetFetchRetries() int {
	if c.FetchRetries == nil {
		return 2
	}
	return *c.FetchRetries
}

// GetProfile returns the profile value or the default.
func (c *TuningConfig) GetProfile() string {
	if c.Profile == nil {
		return "default"
	}
	return *c.Profile
}
