// Package config loads loop tuning knobs from YAML, grounded on
// ChuLiYu-raft-recovery's cmd/demo Config struct (nested yaml-tagged
// sections loaded with gopkg.in/yaml.v3).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the loop's tunable surface, per SPEC_FULL.md §6.
type Config struct {
	Pool struct {
		// Size <= 0 defaults to runtime.NumCPU().
		Size int `yaml:"size"`
	} `yaml:"pool"`

	Stream struct {
		ReadBufferSize int `yaml:"read_buffer_size"`
		// AcceptBacklog is loaded from the file but not read by the
		// engine: ListenTCP always listens with nyx.DefaultBacklog, and no
		// backend pre-posts accepts.
		AcceptBacklog int `yaml:"accept_backlog"`
	} `yaml:"stream"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a Config with every field set to the engine's built-in
// defaults, so a caller that has no config file still gets sane values.
func Default() Config {
	var c Config
	c.Pool.Size = 0
	c.Stream.ReadBufferSize = 65536
	c.Stream.AcceptBacklog = 128
	c.Metrics.Enabled = false
	c.Metrics.Addr = ":9090"
	c.ShutdownTimeout = 5 * time.Second
	return c
}

// Load reads and parses a YAML config file at path, starting from
// Default() so any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
