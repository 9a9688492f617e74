// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIKey            = "SMARTSPECTRA_API_KEY"
	EnvEngineBin         = "SMARTSPECTRA_ENGINE_BIN"
	EnvEngineKillGrace   = "SMARTSPECTRA_KILL_GRACE"
	EnvIngestPort        = "VIDEO_INPUT_PORT"
	EnvBroadcastPort     = "METRICS_OUTPUT_PORT"
	EnvBindHost          = "VITALSD_BIND_HOST"
	EnvOpsListen         = "VITALSD_OPS_LISTEN"
	EnvOpsRateLimit      = "VITALSD_OPS_RATE_LIMIT"
	EnvHeadless          = "HEADLESS"
	EnvVerbosity         = "VERBOSITY"
	EnvLogLevel          = "LOG_LEVEL"
	EnvRecordingsDir     = "PRESAGE_RECORDINGS_DIR"
	EnvFPS               = "PRESAGE_VIDEO_FPS"
	EnvSegmentDuration   = "PRESAGE_SEGMENT_DURATION"
	EnvProcessingMode    = "PRESAGE_PROCESSING_MODE"
	EnvFrameWidth        = "PRESAGE_FRAME_WIDTH"
	EnvFrameHeight       = "PRESAGE_FRAME_HEIGHT"
	EnvJPEGQuality       = "PRESAGE_JPEG_QUALITY"
	EnvWriteTimeout      = "BROADCAST_WRITE_TIMEOUT"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvRedisChannel      = "REDIS_CHANNEL"
	EnvRetention         = "RECORDINGS_RETENTION"
	EnvRetentionSchedule = "RECORDINGS_RETENTION_SCHEDULE"
	EnvQueueWarnDepth    = "DISPATCH_QUEUE_WARN_DEPTH"
	EnvOTelEnabled       = "OTEL_ENABLED"
	EnvOTelExporter      = "OTEL_EXPORTER"
	EnvOTelEndpoint      = "OTEL_ENDPOINT"
	EnvOTelSamplingRate  = "OTEL_SAMPLING_RATE"
	EnvShutdownTimeout   = "VITALSD_SHUTDOWN_TIMEOUT"
)

// DefaultDotEnvFile is read from the working directory when present.
const DefaultDotEnvFile = ".env"

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	dotEnvPath string
	version    string
	logger     zerolog.Logger
}

// NewLoader creates a loader. configPath may be empty (no YAML file).
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		dotEnvPath: DefaultDotEnvFile,
		version:    version,
		logger:     log.WithComponent("config"),
	}
}

// WithDotEnv overrides the .env path. An empty path disables .env loading.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// ConfigPath returns the YAML file path, if any.
func (l *Loader) ConfigPath() string { return l.configPath }

// Load resolves the configuration: defaults, then .env, then the YAML file,
// then the process environment. The result is validated.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.dotEnvPath != "" {
		vars, err := godotenv.Read(l.dotEnvPath)
		switch {
		case err == nil:
			l.logger.Info().Str("event", "config.dotenv_loaded").Str("path", l.dotEnvPath).Int("vars", len(vars)).Msg("loaded .env file")
			l.applyEnv(&cfg, mapSource("dotenv", vars))
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read %s: %w", l.dotEnvPath, err)
		}
	}

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.applyEnv(&cfg, osEnv)

	if cfg.Recordings.Dir != "" {
		if abs, err := filepath.Abs(cfg.Recordings.Dir); err == nil {
			cfg.Recordings.Dir = abs
		}
	}
	cfg.ProcessingMode = strings.ToLower(strings.TrimSpace(cfg.ProcessingMode))
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing. Unknown fields
// are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	l.logger.Info().Str("event", "config.file_loaded").Str("path", path).Msg("loaded config file")
	return nil
}

// applyEnv overlays one variable source onto cfg.
func (l *Loader) applyEnv(cfg *AppConfig, src envSource) {
	lg := l.logger

	cfg.Engine.APIKey = src.str(lg, EnvAPIKey, cfg.Engine.APIKey)
	cfg.Engine.Bin = src.str(lg, EnvEngineBin, cfg.Engine.Bin)
	cfg.Engine.KillGrace = src.duration(lg, EnvEngineKillGrace, cfg.Engine.KillGrace)
	cfg.Engine.Headless = src.boolean(lg, EnvHeadless, cfg.Engine.Headless)
	cfg.Engine.Width = src.integer(lg, EnvFrameWidth, cfg.Engine.Width)
	cfg.Engine.Height = src.integer(lg, EnvFrameHeight, cfg.Engine.Height)

	cfg.Ingest.Port = src.integer(lg, EnvIngestPort, cfg.Ingest.Port)
	cfg.Broadcast.Port = src.integer(lg, EnvBroadcastPort, cfg.Broadcast.Port)
	cfg.Broadcast.WriteTimeout = src.duration(lg, EnvWriteTimeout, cfg.Broadcast.WriteTimeout)
	cfg.Broadcast.Redis.Addr = src.str(lg, EnvRedisAddr, cfg.Broadcast.Redis.Addr)
	cfg.Broadcast.Redis.Password = src.str(lg, EnvRedisPassword, cfg.Broadcast.Redis.Password)
	cfg.Broadcast.Redis.DB = src.integer(lg, EnvRedisDB, cfg.Broadcast.Redis.DB)
	cfg.Broadcast.Redis.Channel = src.str(lg, EnvRedisChannel, cfg.Broadcast.Redis.Channel)

	cfg.BindHost = src.str(lg, EnvBindHost, cfg.BindHost)
	cfg.Verbosity = src.integer(lg, EnvVerbosity, cfg.Verbosity)
	cfg.LogLevel = src.str(lg, EnvLogLevel, cfg.LogLevel)
	cfg.ProcessingMode = src.str(lg, EnvProcessingMode, cfg.ProcessingMode)
	cfg.ShutdownTimeout = src.duration(lg, EnvShutdownTimeout, cfg.ShutdownTimeout)

	cfg.Recordings.Dir = src.str(lg, EnvRecordingsDir, cfg.Recordings.Dir)
	cfg.Recordings.FPS = src.integer(lg, EnvFPS, cfg.Recordings.FPS)
	cfg.Recordings.SegmentSeconds = src.integer(lg, EnvSegmentDuration, cfg.Recordings.SegmentSeconds)
	cfg.Recordings.JPEGQuality = src.integer(lg, EnvJPEGQuality, cfg.Recordings.JPEGQuality)
	cfg.Recordings.Retention = src.duration(lg, EnvRetention, cfg.Recordings.Retention)
	cfg.Recordings.RetentionSchedule = src.str(lg, EnvRetentionSchedule, cfg.Recordings.RetentionSchedule)

	cfg.Dispatch.QueueWarnDepth = src.integer(lg, EnvQueueWarnDepth, cfg.Dispatch.QueueWarnDepth)

	// An explicitly empty VITALSD_OPS_LISTEN disables the ops server.
	if v, ok := src.lookup(EnvOpsListen); ok {
		src.used(lg, EnvOpsListen, v)
		cfg.Ops.Listen = v
	}
	cfg.Ops.RateLimit = src.integer(lg, EnvOpsRateLimit, cfg.Ops.RateLimit)

	cfg.Telemetry.Enabled = src.boolean(lg, EnvOTelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = src.str(lg, EnvOTelExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = src.str(lg, EnvOTelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = src.float(lg, EnvOTelSamplingRate, cfg.Telemetry.SamplingRate)
}
