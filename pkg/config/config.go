// Package config loads meshqual settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chazu/meshqual/pkg/quality"
	"github.com/chazu/meshqual/pkg/report"
)

// Config holds all meshqual configuration.
type Config struct {
	// Limits beyond which elements are reported as poor quality
	Thresholds quality.Thresholds `yaml:"thresholds"`

	Evaluation EvaluationConfig `yaml:"evaluation"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EvaluationConfig controls how case files and metrics are evaluated.
type EvaluationConfig struct {
	Parallel bool   `yaml:"parallel"` // compute the four metrics concurrently
	Timeout  string `yaml:"timeout"`  // case file evaluation limit, e.g. "5s"
}

// OutputConfig sets report defaults the CLI flags can override.
type OutputConfig struct {
	Format      string `yaml:"format"` // json or yaml
	SummaryOnly bool   `yaml:"summary_only"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Thresholds: quality.DefaultThresholds(),
		Evaluation: EvaluationConfig{
			Parallel: true,
			Timeout:  "5s",
		},
		Output: OutputConfig{
			Format: string(report.FormatJSON),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path on top of the defaults. An empty path
// or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if !(c.Thresholds.MaxNonOrtho > 0 && c.Thresholds.MaxNonOrtho <= 180) {
		return fmt.Errorf("thresholds.max_non_ortho must be in (0, 180], got %g", c.Thresholds.MaxNonOrtho)
	}
	if !(c.Thresholds.MaxSkewness > 0) {
		return fmt.Errorf("thresholds.max_skewness must be positive, got %g", c.Thresholds.MaxSkewness)
	}
	if _, err := c.EvalTimeout(); err != nil {
		return err
	}
	if _, err := c.OutputFormat(); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// EvalTimeout parses the evaluation timeout.
func (c *Config) EvalTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Evaluation.Timeout)
	if err != nil {
		return 0, fmt.Errorf("evaluation.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("evaluation.timeout must be positive, got %s", d)
	}
	return d, nil
}

// OutputFormat parses the default report format.
func (c *Config) OutputFormat() (report.Format, error) {
	return report.ParseFormat(c.Output.Format)
}

// LogLevel parses the logging level.
func (c *Config) LogLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
