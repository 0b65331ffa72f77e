// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/blockcache"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load()
	require.NoError(err)
	require.Equal(Default(), cfg)
	require.Equal(512*blockcache.MB, cfg.MaxMemoryBytes())
}

func TestLoadFromEnvironment(t *testing.T) {
	require := require.New(t)

	t.Setenv("BLOCKCACHE_NAME", "Texture Cache")
	t.Setenv("BLOCKCACHE_WORKERS", "8")
	t.Setenv("BLOCKCACHE_HISTORY_SIZE", "32")
	t.Setenv("BLOCKCACHE_MAX_MEMORY_MB", "1.5")
	t.Setenv("BLOCKCACHE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(err)
	require.Equal("Texture Cache", cfg.Name)
	require.Equal(8, cfg.Workers)
	require.Equal(32, cfg.HistorySize)
	require.Equal(1.5, cfg.MaxMemoryMB)
	require.Equal("debug", cfg.LogLevel)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("BLOCKCACHE_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero history", func(c *Config) { c.HistorySize = 0 }},
		{"negative max blocks", func(c *Config) { c.MaxBlocks = -1 }},
		{"no memory bound", func(c *Config) { c.MaxMemoryMB = 0 }},
		{"negative ghosts", func(c *Config) { c.GhostSize = -1 }},
		{"unknown level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), blockcache.ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.MaxMemoryMB = 0
	cfg.MaxBlocks = 10
	require.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(err)
	require.Equal(log.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	require.Empty(buf.String())
	logger.Warn("shown")
	require.Contains(buf.String(), "shown")
}
