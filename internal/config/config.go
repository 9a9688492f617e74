// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration with precedence
// ENV > YAML file > .env file > defaults, and hot-reloads the log settings.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
)

// Processing modes.
const (
	ModeSegment = "segment"
	// ModeSession is deprecated; segments are the supported pipeline.
	ModeSession = "session"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	BindHost        string        `yaml:"bindHost"`
	LogLevel        string        `yaml:"logLevel"`
	Verbosity       int           `yaml:"verbosity"`
	ProcessingMode  string        `yaml:"processingMode"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Engine     EngineConfig     `yaml:"engine"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Ops        OpsConfig        `yaml:"ops"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// EngineConfig configures the analysis engine executable.
type EngineConfig struct {
	APIKey    string        `yaml:"apiKey"`
	Bin       string        `yaml:"bin"`
	Headless  bool          `yaml:"headless"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	KillGrace time.Duration `yaml:"killGrace"`
}

// IngestConfig configures the producer listener.
type IngestConfig struct {
	Port int `yaml:"port"`
}

// BroadcastConfig configures the subscriber listener and the optional mirror.
type BroadcastConfig struct {
	Port         int           `yaml:"port"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	Redis        RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the broadcast mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// RecordingsConfig configures segment recording and retention.
type RecordingsConfig struct {
	Dir               string        `yaml:"dir"`
	FPS               int           `yaml:"fps"`
	SegmentSeconds    int           `yaml:"segmentSeconds"`
	JPEGQuality       int           `yaml:"jpegQuality"`
	Retention         time.Duration `yaml:"retention"`
	RetentionSchedule string        `yaml:"retentionSchedule"`
}

// DispatchConfig configures the analysis queue.
type DispatchConfig struct {
	QueueWarnDepth int `yaml:"queueWarnDepth"`
}

// OpsConfig configures the operations HTTP listener. An empty Listen
// disables it.
type OpsConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rateLimit"` // requests per minute per client
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() AppConfig {
	return AppConfig{
		Verbosity:       1,
		ProcessingMode:  ModeSegment,
		ShutdownTimeout: 30 * time.Second,
		Engine: EngineConfig{
			Headless:  true,
			Width:     1280,
			Height:    720,
			KillGrace: 5 * time.Second,
		},
		Ingest: IngestConfig{Port: 9001},
		Broadcast: BroadcastConfig{
			Port:         9002,
			WriteTimeout: 2 * time.Second,
			Redis:        RedisConfig{Channel: "vitalsd.results"},
		},
		Recordings: RecordingsConfig{
			Dir:               "/tmp/presage_recordings",
			FPS:               30,
			SegmentSeconds:    10,
			JPEGQuality:       90,
			RetentionSchedule: "@every 10m",
		},
		Dispatch: DispatchConfig{QueueWarnDepth: 10},
		Ops:      OpsConfig{Listen: ":9003", RateLimit: 120},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// IngestAddr is the producer listen address.
func (c AppConfig) IngestAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Ingest.Port))
}

// BroadcastAddr is the subscriber listen address.
func (c AppConfig) BroadcastAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Broadcast.Port))
}

// EffectiveLogLevel is LogLevel when set, else the level implied by Verbosity.
func (c AppConfig) EffectiveLogLevel() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return log.LevelForVerbosity(c.Verbosity)
}
