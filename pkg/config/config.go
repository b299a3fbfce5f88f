// Package config provides configuration loading and management for bodycomp.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// MissingSettingError reports a required configuration setting that has no
// value. It is returned by Validate so callers can distinguish bad
// configuration from runtime failures.
type MissingSettingError struct {
	Setting string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("config: required setting %s is not set", e.Setting)
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Model parameters
	Models struct {
		// StorageDir is the directory holding downloaded model weights.
		// It has no usable default and must be set before processing.
		StorageDir string `yaml:"storageDir"`

		// SpineModel identifies the vertebra segmentation model
		SpineModel string `yaml:"spineModel"`

		// TissueModels lists the tissue segmentation models applied to
		// each selected slice
		TissueModels []string `yaml:"tissueModels"`
	} `yaml:"models"`

	// Processing parameters
	Processing struct {
		// BatchSize is the number of slices submitted per inference batch
		BatchSize int `yaml:"batchSize"`

		// Workers is the worker count forwarded to the inference backend
		Workers int `yaml:"workers"`

		// Devices lists the compute device ordinals used round-robin
		// across batches. Empty means CPU only.
		Devices []int `yaml:"devices"`

		// MinSlices is the minimum series length; shorter series are
		// skipped with a log message rather than processed
		MinSlices int `yaml:"minSlices"`

		// ScanWorkers caps how many scans are processed concurrently
		ScanWorkers int `yaml:"scanWorkers"`

		// Overwrite reprocesses scans whose results already exist
		Overwrite bool `yaml:"overwrite"`
	} `yaml:"processing"`

	// Inference backend commands
	Inference struct {
		// Command2D is the command line invoked for per-slice tissue
		// segmentation
		Command2D string `yaml:"command2d"`

		// Command3D is the command line invoked for volumetric spine
		// segmentation
		Command3D string `yaml:"command3d"`
	} `yaml:"inference"`

	// Output parameters
	Output struct {
		// ResultsDir is the root directory for artifacts and manifests
		ResultsDir string `yaml:"resultsDir"`

		// SaveOverlays writes segmentation overlay images next to the
		// metric artifacts
		SaveOverlays bool `yaml:"saveOverlays"`

		// OverlayMaxDim caps the longest edge of overlay images in
		// pixels; 0 keeps the native slice resolution
		OverlayMaxDim int `yaml:"overlayMaxDim"`

		// OverlayWindowCenter and OverlayWindowWidth set the Hounsfield
		// display window for overlay rendering
		OverlayWindowCenter float64 `yaml:"overlayWindowCenter"`
		OverlayWindowWidth  float64 `yaml:"overlayWindowWidth"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Models.SpineModel = "spine"
	cfg.Models.TissueModels = []string{"tissue"}

	cfg.Processing.BatchSize = 1
	cfg.Processing.Workers = runtime.NumCPU()
	// empty, not nil, so the value survives a save/load round trip
	cfg.Processing.Devices = []int{}
	cfg.Processing.MinSlices = 300
	cfg.Processing.ScanWorkers = 1
	cfg.Processing.Overwrite = false

	cfg.Output.ResultsDir = "results"
	cfg.Output.SaveOverlays = false
	cfg.Output.OverlayMaxDim = 512
	// soft tissue window
	cfg.Output.OverlayWindowCenter = 40
	cfg.Output.OverlayWindowWidth = 400
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks that every setting required for processing has a value.
func (cfg *Config) Validate() error {
	if cfg.Models.StorageDir == "" {
		return &MissingSettingError{Setting: "models.storageDir"}
	}
	if cfg.Processing.BatchSize < 1 {
		return fmt.Errorf("config: processing.batchSize must be at least 1, got %d", cfg.Processing.BatchSize)
	}
	if cfg.Processing.MinSlices < 0 {
		return fmt.Errorf("config: processing.minSlices must not be negative, got %d", cfg.Processing.MinSlices)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
