// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	InputDir   string `json:"input_dir,omitempty" validate:"omitempty,dir"`
	ScratchDir string `json:"scratch_dir,omitempty"`

	// Run scoping
	Cycle    string `json:"cycle,omitempty"`
	Industry string `json:"industry,omitempty"`

	// Behavior
	APIKey              string  `json:"api_key,omitempty"`
	DatabaseURL         string  `json:"database_url,omitempty"`
	Verbose             bool    `json:"verbose,omitempty"`
	MaxConcurrent       int     `json:"max_concurrent,omitempty" validate:"gte=0,lte=64"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" validate:"gte=0,lte=1"`
	ScoreThreshold      float64 `json:"score_threshold,omitempty" validate:"gte=0,lte=10"`
}

var validate = validator.New()

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required fields are not checked here; they are enforced by CLI flag
// validation after merging.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: field %q fails %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.InputDir == "" {
		result.InputDir = defaults.InputDir
	}
	if result.ScratchDir == "" {
		result.ScratchDir = defaults.ScratchDir
	}
	if result.Cycle == "" {
		result.Cycle = defaults.Cycle
	}
	if result.Industry == "" {
		result.Industry = defaults.Industry
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Numeric fields: use default if zero
	if result.MaxConcurrent == 0 {
		result.MaxConcurrent = defaults.MaxConcurrent
	}
	if result.SimilarityThreshold == 0 {
		result.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if result.ScoreThreshold == 0 {
		result.ScoreThreshold = defaults.ScoreThreshold
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
