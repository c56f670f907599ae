// Package config holds the driver configuration: defaults, an optional
// YAML config file, and flag overrides applied by the daemon.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the mudd driver.
type Config struct {
	Addr         string `yaml:"addr"`          // API listen address (default ":8668")
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
	LogFormat    string `yaml:"log_format"`    // text, json
	DBPath       string `yaml:"db_path"`       // SQLite database path (":memory:" for testing)
	SnapshotPath string `yaml:"snapshot_path"` // callout table dump file; empty disables snapshots
	MaxCallouts  uint32 `yaml:"max_callouts"`  // callout table capacity; 0 disables callouts
	MaxClockLag  uint32 `yaml:"max_clock_lag"` // dispatch batch cap after a clock jump, seconds
	ScriptCache  int    `yaml:"script_cache"`  // compiled-program cache size
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Addr:        ":8668",
		LogLevel:    "info",
		LogFormat:   "text",
		MaxCallouts: 4096,
		MaxClockLag: 60,
		ScriptCache: 64,
	}
}

// Load reads a YAML config file over the given base configuration. Fields
// absent from the file keep their base values.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
