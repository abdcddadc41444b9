// Package config holds the pnpsetup configuration: where the event store and
// machine description live, which milestone the operator is targeting, and
// the settle calibration settings.
//
// Configuration is read from an optional YAML file and PNPSETUP_* environment
// variables, environment winning over the file:
//
//	milestone: vision
//	database: .pnpsetup/pnpsetup.db
//	machine: machine.yaml
//	telemetry: false
//	settle:
//	  wanted_resolution_mm: 0.05
//	  acceptable_compute_time: 20ms
//
//	PNPSETUP_MILESTONE=basics
//	PNPSETUP_SETTLE_ACCEPTABLE_COMPUTE_TIME=50ms
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all configuration environment variables.
const EnvPrefix = "PNPSETUP"

// DefaultConfigPath is where Load looks when no explicit path is given.
var DefaultConfigPath = filepath.Join(".pnpsetup", "config.yaml")

// Config is the application configuration.
type Config struct {
	// Milestone is the setup milestone the operator is targeting (e.g. "vision")
	Milestone string `mapstructure:"milestone"`

	// DatabasePath is the SQLite file holding events and calibration history
	DatabasePath string `mapstructure:"database"`

	// MachineFile is the YAML machine description used by the simulator
	MachineFile string `mapstructure:"machine"`

	// Telemetry enables OpenTelemetry metrics export
	Telemetry bool `mapstructure:"telemetry"`

	Settle SettleCalibrationConfig `mapstructure:"settle"`
}

// Default returns the default application configuration
func Default() *Config {
	return &Config{
		Milestone:    "vision",
		DatabasePath: filepath.Join(".pnpsetup", "pnpsetup.db"),
		MachineFile:  "machine.yaml",
		Telemetry:    false,
		Settle:       DefaultSettleCalibrationConfig(),
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Milestone) == "" {
		return fmt.Errorf("milestone is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Settle.Validate(); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return nil
}

// Load reads the configuration. An empty path falls back to
// DefaultConfigPath when that file exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("milestone", d.Milestone)
	v.SetDefault("database", d.DatabasePath)
	v.SetDefault("machine", d.MachineFile)
	v.SetDefault("telemetry", d.Telemetry)

	v.SetDefault("settle.wanted_resolution_mm", d.Settle.WantedResolutionMm)
	v.SetDefault("settle.test_move_mm", d.Settle.TestMoveMm)
	v.SetDefault("settle.acceptable_compute_time", d.Settle.AcceptableComputeTime)
	v.SetDefault("settle.maximum_pixel_diff", d.Settle.MaximumPixelDiff)
	v.SetDefault("settle.zero_knowledge_settle_time", d.Settle.ZeroKnowledgeSettleTime)
	v.SetDefault("settle.settle_down_delay", d.Settle.SettleDownDelay)
	v.SetDefault("settle.capture_retry_max_elapsed", d.Settle.CaptureRetryMaxElapsed)
}
