// Package config loads the mzFeat settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/524D/mzfeat/internal/lcms"

	"gopkg.in/yaml.v3"
)

// Storage modes
const (
	StorageMemory = "memory"
	StorageMmap   = "mmap"
)

// Config holds everything a detection run needs besides its input files.
type Config struct {
	Logging    LoggingConfig `yaml:"logging"`
	Storage    StorageConfig `yaml:"storage"`
	Workers    int           `yaml:"workers"`
	Processing lcms.Params   `yaml:"processing"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig selects where decoded spectra are kept during processing.
type StorageConfig struct {
	Mode string `yaml:"mode"`
	// Directory for the spill file of the mmap store, empty for the
	// system temporary directory
	Dir string `yaml:"dir"`
	// Number of decoded scans kept by the mmap store
	CacheSize int `yaml:"cacheSize"`
}

// ErrInvalidConfig is wrapped by all Validate errors
var ErrInvalidConfig = errors.New("invalid configuration")

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MZFEAT_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Logging:    LoggingConfig{Level: "info", JSON: false},
		Storage:    StorageConfig{Mode: StorageMemory, CacheSize: 256},
		Workers:    0,
		Processing: lcms.DefaultParams(),
	}
}

// Validate checks the settings that Load cannot repair
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StorageMemory, StorageMmap:
	default:
		return fmt.Errorf("storage.mode %q is not %s or %s: %w", c.Storage.Mode, StorageMemory, StorageMmap, ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %w", ErrInvalidConfig)
	}
	if err := c.Processing.Validate(); err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MZFEAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MZFEAT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MZFEAT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("MZFEAT_STORAGE"); v != "" {
		cfg.Storage.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MZFEAT_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
}
