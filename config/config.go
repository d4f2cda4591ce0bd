// Package config holds the user-facing configuration of a tier cache.
// Optional subsystems follow the nil-means-disabled convention; AdjustConfig
// fills the remaining defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	// Memory configures the in-process tier. If nil, defaults apply (the
	// memory tier always exists).
	Memory *MemoryCfg `yaml:"memory"`

	// Disk configures the file-system tier. Required: Name must be set.
	Disk *DiskCfg `yaml:"disk"`

	// Download configures the network fetch layer.
	// If nil, defaults apply.
	Download *DownloadCfg `yaml:"download"`

	// Telemetry configures periodic stats logging.
	// If nil, telemetry logging is disabled.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

// Validate reports configuration that cannot be defaulted away.
func (cfg *Config) Validate() error {
	if cfg.Disk == nil {
		return fmt.Errorf("%w: disk section is required", ErrInvalidConfig)
	}
	if cfg.Disk.Name == "" {
		return fmt.Errorf("%w: disk.name is required", ErrInvalidConfig)
	}
	return nil
}

// AdjustConfig fills defaults in place. Safe to call more than once.
func (cfg *Config) AdjustConfig() {
	if cfg.Memory == nil {
		cfg.Memory = &MemoryCfg{}
	}
	if cfg.Memory.CleanInterval <= 0 {
		cfg.Memory.CleanInterval = 2 * time.Minute
	}
	if cfg.Memory.DefaultExpiration <= 0 {
		cfg.Memory.DefaultExpiration = 5 * time.Minute
	}

	if cfg.Disk != nil && cfg.Disk.DefaultExpiration <= 0 {
		cfg.Disk.DefaultExpiration = 7 * 24 * time.Hour
	}

	if cfg.Download == nil {
		cfg.Download = &DownloadCfg{}
	}
	if cfg.Download.Timeout <= 0 {
		cfg.Download.Timeout = 15 * time.Second
	}

	if cfg.Telemetry.Enabled() && cfg.Telemetry.LogsInterval <= 0 {
		cfg.Telemetry.LogsInterval = 5 * time.Second
	}
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.AdjustConfig()

	return cfg, nil
}
