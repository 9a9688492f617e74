// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command vitalsd records a live video stream into segments, analyses each
// segment and broadcasts the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/vitalsd/internal/config"
	"github.com/ManuGH/vitalsd/internal/daemon"
	vlog "github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/telemetry"
	"github.com/ManuGH/vitalsd/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		}
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vitalsd", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	dotEnv := fs.String("env-file", config.DefaultDotEnvFile, "path to .env file; empty disables")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	// Safe defaults until the config is loaded.
	vlog.Configure(vlog.Config{
		Level:   "info",
		Service: "vitalsd",
		Version: version.Version,
	})
	logger := vlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(strings.TrimSpace(*configPath), version.Version).WithDotEnv(*dotEnv)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", loader.ConfigPath()).
			Msg("failed to load configuration")
		return 1
	}

	vlog.Configure(vlog.Config{
		Level:   cfg.EffectiveLogLevel(),
		Service: "vitalsd",
		Version: cfg.Version,
	})
	source := "env+defaults"
	if loader.ConfigPath() != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", loader.ConfigPath()).
		Msg("configuration loaded")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "vitalsd",
		ServiceVersion: version.Version,
		Environment:    config.ParseString("VITALSD_ENVIRONMENT", "production"),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Str("event", "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
	} else {
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Str("event", "telemetry.shutdown_failed").Msg("telemetry shutdown error")
			}
		}()
	}

	app, err := daemon.New(daemon.Deps{
		Config: cfg,
		Holder: config.NewConfigHolder(cfg, loader),
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "daemon.init_failed").Msg("failed to initialise daemon")
		return 1
	}

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit").Msg("vitalsd exited with error")
		return 1
	}
	return 0
}
