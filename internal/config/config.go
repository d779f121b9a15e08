// Package config holds the speedhist runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/speedhist/internal/errors"
)

// Config represents the complete speedhist configuration.
type Config struct {
	// Database configures the embedded SQLite store.
	Database DatabaseConfig `yaml:"database"`

	// Collector configures the interface counter sampler.
	Collector CollectorConfig `yaml:"collector"`

	// Ingest configures buffering and persistence of samples.
	Ingest IngestConfig `yaml:"ingest"`

	// Retention defines how long persisted history is kept.
	Retention RetentionConfig `yaml:"retention"`

	// Maintenance configures the periodic aggregation/retention pass.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the embedded SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. The directory must exist or be
	// creatable by the process.
	Path string `yaml:"path"`
}

// CollectorConfig configures the interface counter sampler.
type CollectorConfig struct {
	// PollInterval is the sampling cadence.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ExcludedInterfaces are interface names to skip entirely (e.g. "lo").
	ExcludedInterfaces []string `yaml:"excluded_interfaces"`
}

// IngestConfig configures buffering and persistence of samples.
type IngestConfig struct {
	// NegligibleSpeedThreshold is the bytes/sec floor below which a sample
	// is kept for live display but never persisted.
	NegligibleSpeedThreshold float64 `yaml:"negligible_speed_threshold"`

	// FlushInterval is how often the pending batch is handed to the
	// persistence worker.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// LiveWindowSize is the maximum number of entries in the in-memory
	// live window used for graphing.
	LiveWindowSize int `yaml:"live_window_size"`
}

// RetentionConfig defines how long persisted history is kept.
type RetentionConfig struct {
	// KeepDataDays is the retention target in days. Shrinking it only takes
	// effect after the grace period elapses.
	KeepDataDays int `yaml:"keep_data_days"`
}

// MaintenanceConfig configures the periodic aggregation/retention pass.
type MaintenanceConfig struct {
	// Interval is how often maintenance runs.
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output to JSON format.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "speed_history.db",
		},
		Collector: CollectorConfig{
			PollInterval:       time.Second,
			ExcludedInterfaces: []string{"lo"},
		},
		Ingest: IngestConfig{
			NegligibleSpeedThreshold: 1.0,
			FlushInterval:            30 * time.Second,
			LiveWindowSize:           600,
		},
		Retention: RetentionConfig{
			KeepDataDays: 365,
		},
		Maintenance: MaintenanceConfig{
			Interval: time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.NewMissingField("database.path")
	}
	if c.Collector.PollInterval <= 0 {
		return errors.NewInvalidValue("collector.poll_interval", c.Collector.PollInterval, "must be positive")
	}
	if c.Ingest.NegligibleSpeedThreshold < 0 {
		return errors.NewInvalidValue("ingest.negligible_speed_threshold", c.Ingest.NegligibleSpeedThreshold, "must not be negative")
	}
	if c.Ingest.FlushInterval <= 0 {
		return errors.NewInvalidValue("ingest.flush_interval", c.Ingest.FlushInterval, "must be positive")
	}
	if c.Ingest.LiveWindowSize <= 0 {
		return errors.NewInvalidValue("ingest.live_window_size", c.Ingest.LiveWindowSize, "must be positive")
	}
	if c.Retention.KeepDataDays < 1 {
		return errors.NewInvalidValue("retention.keep_data_days", c.Retention.KeepDataDays, "must be at least 1")
	}
	if c.Maintenance.Interval <= 0 {
		return errors.NewInvalidValue("maintenance.interval", c.Maintenance.Interval, "must be positive")
	}
	return nil
}
