// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"os/exec"

	"github.com/ManuGH/vitalsd/internal/config"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks prepares the environment before the servers start.
// Problems are logged as warnings and left to the readiness checks; only a
// cancelled context aborts startup.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	checkRecordingsDir(logger, cfg.Recordings.Dir)
	checkEngine(logger, cfg.Engine)
	return ctx.Err()
}

func checkRecordingsDir(logger zerolog.Logger, path string) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		logger.Warn().Str(log.FieldRecordingDir, path).
			Str("event", "startup.recordings_dir_not_directory").
			Msg("recordings path is not a directory; the daemon reports not ready until it is fixed")
		return
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		logger.Warn().Err(err).Str(log.FieldRecordingDir, path).
			Str("event", "startup.recordings_dir_unavailable").
			Msg("could not create recordings directory; sessions will fail to record")
		return
	}
	logger.Info().Str(log.FieldRecordingDir, path).Msg("recordings directory ready")
}

func checkEngine(logger zerolog.Logger, cfg config.EngineConfig) {
	if cfg.APIKey == "" {
		logger.Warn().Str("event", "startup.demo_mode").
			Msg("no SMARTSPECTRA_API_KEY configured; the engine runs in demo mode")
	}
	if cfg.Bin == "" {
		logger.Warn().Str("event", "startup.engine_unconfigured").
			Msg("no engine binary configured; segments will be recorded but not analysed")
		return
	}
	if _, err := exec.LookPath(cfg.Bin); err != nil {
		logger.Warn().Err(err).Str("bin", cfg.Bin).Str("event", "startup.engine_missing").
			Msg("engine binary not found; segments will be recorded but not analysed")
		return
	}
	logger.Info().Str("bin", cfg.Bin).Msg("analysis engine available")
}
