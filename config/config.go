// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads cache settings from the environment.
package config

import (
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"

	"github.com/luxfi/blockcache"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "BLOCKCACHE_"

// Config holds the settings of one cache instance. The mapstructure tags let
// viper decode config files and flags into the same struct.
type Config struct {
	// Name labels the ledger report and the worker log prefix.
	Name string `env:"NAME" envDefault:"blockcache" mapstructure:"name"`
	// Workers is the fixed worker pool size.
	Workers int `env:"WORKERS" envDefault:"4" mapstructure:"workers"`
	// HistorySize bounds the ledger's event history.
	HistorySize int `env:"HISTORY_SIZE" envDefault:"1024" mapstructure:"history_size"`
	// MaxMemoryMB bounds the resident bytes of the byte-sized store.
	MaxMemoryMB float64 `env:"MAX_MEMORY_MB" envDefault:"512" mapstructure:"max_memory_mb"`
	// MaxBlocks switches to a count-bounded store when positive.
	MaxBlocks int `env:"MAX_BLOCKS" envDefault:"0" mapstructure:"max_blocks"`
	// GhostSize is the number of recently unloaded keys remembered to detect
	// reloads. Zero disables reload detection.
	GhostSize int `env:"GHOST_SIZE" envDefault:"256" mapstructure:"ghost_size"`
	// MetricsNamespace prefixes every prometheus collector.
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"blockcache" mapstructure:"metrics_namespace"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info" mapstructure:"log_level"`
}

// Default returns the configuration obtained from an empty environment.
func Default() Config {
	return Config{
		Name:             "blockcache",
		Workers:          4,
		HistorySize:      1024,
		MaxMemoryMB:      512,
		GhostSize:        256,
		MetricsNamespace: "blockcache",
		LogLevel:         "info",
	}
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >=1 but is %d", blockcache.ErrInvalidConfig, c.Workers)
	case c.HistorySize < 1:
		return fmt.Errorf("%w: history size must be >=1 but is %d", blockcache.ErrInvalidConfig, c.HistorySize)
	case c.MaxBlocks < 0:
		return fmt.Errorf("%w: max blocks must be >=0 but is %d", blockcache.ErrInvalidConfig, c.MaxBlocks)
	case c.MaxBlocks == 0 && c.MaxMemoryMB <= 0:
		return fmt.Errorf("%w: max memory must be positive but is %g", blockcache.ErrInvalidConfig, c.MaxMemoryMB)
	case c.GhostSize < 0:
		return fmt.Errorf("%w: ghost size must be >=0 but is %d", blockcache.ErrInvalidConfig, c.GhostSize)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", blockcache.ErrInvalidConfig, err)
	}
	return nil
}

// MaxMemoryBytes converts MaxMemoryMB to bytes.
func (c Config) MaxMemoryBytes() int {
	return int(c.MaxMemoryMB * blockcache.MB)
}

// NewLogger returns a logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", blockcache.ErrInvalidConfig, err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	}), nil
}
