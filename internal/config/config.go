// Package config loads the Config struct backing a LIMS core deployment:
// a YAML file (gopkg.in/yaml.v3) supplying defaults, overridden by LIMS_*
// environment variables following the same factory convention used by
// internal/core/storage.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors spec.md §6's configuration surface.
type Config struct {
	Barcode     BarcodeConfig     `yaml:"barcode"`
	Storage     StorageConfig     `yaml:"storage"`
	Bus         BusConfig         `yaml:"bus"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Blob        BlobConfig        `yaml:"blob"`
}

// BarcodeConfig configures the sample barcode minter.
type BarcodeConfig struct {
	Prefix          string `yaml:"prefix"`
	Separator       string `yaml:"separator"`
	MinLength       int    `yaml:"min_length"`
	IncludeDate     bool   `yaml:"include_date"`
	IncludeSequence bool   `yaml:"include_sequence"`
}

// StorageConfig configures the hierarchy/occupancy allocator.
type StorageConfig struct {
	MaxHierarchyDepth         int     `yaml:"max_hierarchy_depth"`
	CapacityWarningThreshold  float64 `yaml:"capacity_warning_threshold"`
	CapacityCriticalThreshold float64 `yaml:"capacity_critical_threshold"`
}

// BusConfig configures the Redis Streams event bus.
type BusConfig struct {
	Capacity         int      `yaml:"capacity"`
	DefaultBatchSize int      `yaml:"default_batch_size"`
	DefaultTimeout   Duration `yaml:"default_timeout_ms"`
	RedisURL         string   `yaml:"redis_url"`
}

// PersistenceConfig selects and configures the backing store.
type PersistenceConfig struct {
	Driver     string `yaml:"driver"`
	ConnectURL string `yaml:"connect_url"`
	PoolMax    int    `yaml:"pool_max"`
}

// BlobConfig selects the attachment/blob storage backend.
type BlobConfig struct {
	Driver string `yaml:"driver"`
}

// Duration wraps time.Duration for YAML, accepting either a Go duration
// string ("5s") or a bare number of milliseconds, per spec.md §6's
// default_timeout_ms field. Grounded on quarry's cli/config.Duration,
// extended to also accept the plain-milliseconds form.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "5s" or a bare millisecond
// count like "5000".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in defaults matching spec.md §6.
func Default() Config {
	return Config{
		Barcode: BarcodeConfig{
			Prefix: "LAB", Separator: "-", MinLength: 10,
			IncludeDate: true, IncludeSequence: true,
		},
		Storage: StorageConfig{
			MaxHierarchyDepth:         4,
			CapacityWarningThreshold:  0.80,
			CapacityCriticalThreshold: 0.95,
		},
		Bus: BusConfig{
			Capacity: 1000, DefaultBatchSize: 10,
			DefaultTimeout: Duration{5 * time.Second},
			RedisURL:       "redis://localhost:6379",
		},
		Persistence: PersistenceConfig{Driver: "sqlite", PoolMax: 10},
		Blob:        BlobConfig{Driver: "fs"},
	}
}

// Load reads a YAML config file at path (if non-empty and present), starting
// from Default() and overlaying any fields set in the file, then applies
// LIMS_* environment variable overrides on top. A missing path is not an
// error: the caller gets defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides follows the LIMS_* environment-variable factory
// convention already used by internal/core/storage.OpenPersistentStore.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIMS_BARCODE_PREFIX"); v != "" {
		cfg.Barcode.Prefix = v
	}
	if v := os.Getenv("LIMS_BARCODE_SEPARATOR"); v != "" {
		cfg.Barcode.Separator = v
	}
	if v := os.Getenv("LIMS_STORAGE_DRIVER"); v != "" {
		cfg.Persistence.Driver = v
	}
	if v := os.Getenv("LIMS_POSTGRES_DSN"); v != "" {
		cfg.Persistence.ConnectURL = v
	}
	if v := os.Getenv("LIMS_SQLITE_PATH"); v != "" {
		cfg.Persistence.ConnectURL = v
	}
	if v := os.Getenv("LIMS_BUS_REDIS_URL"); v != "" {
		cfg.Bus.RedisURL = v
	}
	if v := os.Getenv("LIMS_BUS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.DefaultBatchSize = n
		}
	}
}
