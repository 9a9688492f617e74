// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Message)
}

type validator struct {
	errs []error
}

func (v *validator) add(field string, value any, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *validator) port(field string, p int) {
	if p < 1 || p > 65535 {
		v.add(field, p, "must be between 1 and 65535")
	}
}

func (v *validator) positive(field string, n int) {
	if n <= 0 {
		v.add(field, n, "must be positive")
	}
}

// Validate checks a resolved configuration. All failures are reported
// together, each wrapped in ErrInvalidConfig.
func Validate(cfg AppConfig) error {
	var v validator

	v.port("ingest.port", cfg.Ingest.Port)
	v.port("broadcast.port", cfg.Broadcast.Port)
	if cfg.Ingest.Port == cfg.Broadcast.Port {
		v.add("broadcast.port", cfg.Broadcast.Port, "must differ from ingest.port")
	}

	v.positive("recordings.fps", cfg.Recordings.FPS)
	if cfg.Recordings.SegmentSeconds < 0 {
		v.add("recordings.segmentSeconds", cfg.Recordings.SegmentSeconds, "must not be negative")
	}
	if q := cfg.Recordings.JPEGQuality; q < 1 || q > 100 {
		v.add("recordings.jpegQuality", q, "must be between 1 and 100")
	}
	if strings.TrimSpace(cfg.Recordings.Dir) == "" {
		v.add("recordings.dir", cfg.Recordings.Dir, "must not be empty")
	}
	if cfg.Recordings.Retention < 0 {
		v.add("recordings.retention", cfg.Recordings.Retention, "must not be negative")
	}
	if cfg.Recordings.Retention > 0 {
		if _, err := cron.ParseStandard(cfg.Recordings.RetentionSchedule); err != nil {
			v.add("recordings.retentionSchedule", cfg.Recordings.RetentionSchedule, err.Error())
		}
	}

	switch cfg.ProcessingMode {
	case ModeSegment, ModeSession:
	default:
		v.add("processingMode", cfg.ProcessingMode, "must be segment or session")
	}

	v.positive("engine.width", cfg.Engine.Width)
	v.positive("engine.height", cfg.Engine.Height)
	if cfg.Engine.KillGrace < 0 {
		v.add("engine.killGrace", cfg.Engine.KillGrace, "must not be negative")
	}

	if cfg.Verbosity < 0 {
		v.add("verbosity", cfg.Verbosity, "must not be negative")
	}
	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
			v.add("logLevel", cfg.LogLevel, "unknown level")
		}
	}
	if cfg.Broadcast.WriteTimeout <= 0 {
		v.add("broadcast.writeTimeout", cfg.Broadcast.WriteTimeout, "must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		v.add("shutdownTimeout", cfg.ShutdownTimeout, "must be positive")
	}
	if cfg.Dispatch.QueueWarnDepth < 0 {
		v.add("dispatch.queueWarnDepth", cfg.Dispatch.QueueWarnDepth, "must not be negative")
	}

	if cfg.Ops.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Ops.Listen); err != nil {
			v.add("ops.listen", cfg.Ops.Listen, "must be host:port")
		}
	}
	if cfg.Ops.RateLimit < 0 {
		v.add("ops.rateLimit", cfg.Ops.RateLimit, "must not be negative")
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			v.add("telemetry.exporter", cfg.Telemetry.Exporter, "must be grpc or http")
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.add("telemetry.samplingRate", cfg.Telemetry.SamplingRate, "must be between 0 and 1")
		}
	}

	if len(v.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(v.errs...))
}
