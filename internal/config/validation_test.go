// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"zero fps", func(c *AppConfig) { c.Recordings.FPS = 0 }, "recordings.fps"},
		{"negative segment", func(c *AppConfig) { c.Recordings.SegmentSeconds = -1 }, "recordings.segmentSeconds"},
		{"port range", func(c *AppConfig) { c.Ingest.Port = 70000 }, "ingest.port"},
		{"same ports", func(c *AppConfig) { c.Broadcast.Port = c.Ingest.Port }, "broadcast.port"},
		{"mode", func(c *AppConfig) { c.ProcessingMode = "batch" }, "processingMode"},
		{"log level", func(c *AppConfig) { c.LogLevel = "loud" }, "logLevel"},
		{"quality", func(c *AppConfig) { c.Recordings.JPEGQuality = 101 }, "recordings.jpegQuality"},
		{"schedule", func(c *AppConfig) {
			c.Recordings.Retention = 1
			c.Recordings.RetentionSchedule = "whenever"
		}, "recordings.retentionSchedule"},
		{"ops listen", func(c *AppConfig) { c.Ops.Listen = "9003" }, "ops.listen"},
		{"exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateReportsAllFailures(t *testing.T) {
	cfg := Defaults()
	cfg.Recordings.FPS = 0
	cfg.Engine.Width = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recordings.fps")
	assert.Contains(t, err.Error(), "engine.width")
}
