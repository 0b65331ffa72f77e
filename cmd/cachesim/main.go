// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Command cachesim drives a synthetic block workload through the cache and
// prints the resulting ledger report.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/luxfi/metric"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxfi/blockcache/config"
)

var (
	configFile  string
	metricsAddr string
	minSize     string
	maxSize     string
	work        workload

	rootCmd = &cobra.Command{
		Use:          "cachesim",
		Short:        "Simulate block loads against the cache",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         execute,
	}
)

func init() {
	def := config.Default()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.Flags().String("name", def.Name, "cache name used in logs and the report")
	rootCmd.Flags().Int("workers", def.Workers, "worker pool size")
	rootCmd.Flags().Int("history-size", def.HistorySize, "number of ledger events kept")
	rootCmd.Flags().Float64("max-memory-mb", def.MaxMemoryMB, "memory bound of the store in MB")
	rootCmd.Flags().Int("max-blocks", def.MaxBlocks, "bound the store by block count instead of memory")
	rootCmd.Flags().Int("ghost-size", def.GhostSize, "recently unloaded keys tracked for reload detection")
	rootCmd.Flags().String("metrics-namespace", def.MetricsNamespace, "prometheus namespace")
	rootCmd.Flags().String("log-level", def.LogLevel, "log level (debug, info, warn, error)")

	rootCmd.Flags().IntVar(&work.Ops, "ops", 10_000, "total number of fetches")
	rootCmd.Flags().IntVar(&work.Keys, "keys", 512, "number of distinct blocks")
	rootCmd.Flags().IntVar(&work.Clients, "clients", 8, "concurrent fetching clients")
	rootCmd.Flags().Float64Var(&work.Rate, "rate", 0, "fetches per second across all clients (0 is unlimited)")
	rootCmd.Flags().StringVar(&minSize, "min-size", "256KiB", "smallest block size")
	rootCmd.Flags().StringVar(&maxSize, "max-size", "4MiB", "largest block size")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	for key, flag := range map[string]string{
		"name":              "name",
		"workers":           "workers",
		"history_size":      "history-size",
		"max_memory_mb":     "max-memory-mb",
		"max_blocks":        "max-blocks",
		"ghost_size":        "ghost-size",
		"metrics_namespace": "metrics-namespace",
		"log_level":         "log-level",
	} {
		_ = viper.BindPFlag(key, rootCmd.Flags().Lookup(flag))
	}
}

// loadConfig layers flags and the config file over the environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	viper.SetDefault("name", cfg.Name)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("history_size", cfg.HistorySize)
	viper.SetDefault("max_memory_mb", cfg.MaxMemoryMB)
	viper.SetDefault("max_blocks", cfg.MaxBlocks)
	viper.SetDefault("ghost_size", cfg.GhostSize)
	viper.SetDefault("metrics_namespace", cfg.MetricsNamespace)
	viper.SetDefault("log_level", cfg.LogLevel)

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

func execute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("using configuration file", "path", used)
	}

	w := work
	if w.MinSize, err = humanize.ParseBytes(minSize); err != nil {
		return fmt.Errorf("parsing --min-size: %w", err)
	}
	if w.MaxSize, err = humanize.ParseBytes(maxSize); err != nil {
		return fmt.Errorf("parsing --max-size: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var reg metric.Registry
	if metricsAddr != "" {
		reg = metric.NewRegistry()
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metric.HTTPHandler(reg, metric.HTTPHandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	return simulate(ctx, cfg, w, logger, reg, cmd.OutOrStdout())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("cachesim failed", "error", err)
		os.Exit(1)
	}
}
