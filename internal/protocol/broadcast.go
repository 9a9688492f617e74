// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"time"

	"github.com/ManuGH/vitalsd/internal/engine"
)

// Broadcast message types.
const (
	TypeStatus        = "status"
	TypeSDKStatus     = "sdk_status"
	TypeMetrics       = "metrics"
	TypeEdgeMetrics   = "edge_metrics"
	TypeImagingStatus = "sdk_imaging_status"
	TypeSegmentReady  = "segment_ready"
)

// Daemon status values.
const (
	StatusReady    = "ready"
	StatusShutdown = "shutdown"
)

// sdk_status values.
const (
	SDKProcessingStarted   = "processing_started"
	SDKProcessingCompleted = "processing_completed"
	SDKError               = "error"
)

// MetricsSource identifies the analysis engine in metrics messages.
const MetricsSource = "presage_sdk"

// Status reports daemon lifecycle transitions.
type Status struct {
	Envelope
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewStatus builds a status message.
func NewStatus(now time.Time, status, message string) Status {
	return Status{Envelope: NewEnvelope(TypeStatus, now), Status: status, Message: message}
}

// SDKStatus reports the lifecycle of one analysis job.
type SDKStatus struct {
	Envelope
	Tag
	Status       string `json:"status"`
	Mode         string `json:"mode,omitempty"`
	VideoPath    string `json:"video_path,omitempty"`
	MetricsCount *int   `json:"metrics_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewSDKStarted builds a processing_started message.
func NewSDKStarted(now time.Time, tag Tag, mode, videoPath string) SDKStatus {
	return SDKStatus{
		Envelope:  NewEnvelope(TypeSDKStatus, now),
		Tag:       tag,
		Status:    SDKProcessingStarted,
		Mode:      mode,
		VideoPath: videoPath,
	}
}

// NewSDKCompleted builds a processing_completed message.
func NewSDKCompleted(now time.Time, tag Tag, mode string, metricsCount int) SDKStatus {
	return SDKStatus{
		Envelope:     NewEnvelope(TypeSDKStatus, now),
		Tag:          tag,
		Status:       SDKProcessingCompleted,
		Mode:         mode,
		MetricsCount: &metricsCount,
	}
}

// NewSDKError builds an error message.
func NewSDKError(now time.Time, tag Tag, mode, msg string) SDKStatus {
	return SDKStatus{
		Envelope: NewEnvelope(TypeSDKStatus, now),
		Tag:      tag,
		Status:   SDKError,
		Mode:     mode,
		Error:    msg,
	}
}

// Metrics republishes engine core metrics.
type Metrics struct {
	Envelope
	Tag
	Source string `json:"source"`
	engine.CoreMetrics
}

// NewMetrics builds a metrics message. The engine timestamp, when present,
// becomes the envelope timestamp.
func NewMetrics(now time.Time, tag Tag, m engine.CoreMetrics) Metrics {
	env := NewEnvelope(TypeMetrics, now)
	if m.Timestamp > 0 {
		env.Timestamp = m.Timestamp
	}
	return Metrics{Envelope: env, Tag: tag, Source: MetricsSource, CoreMetrics: m}
}

// EdgeMetrics republishes per-frame engine metrics.
type EdgeMetrics struct {
	Envelope
	Tag
	Realtime bool `json:"realtime"`
	engine.EdgeMetrics
}

// NewEdgeMetrics builds an edge_metrics message; realtime is always true.
func NewEdgeMetrics(now time.Time, tag Tag, m engine.EdgeMetrics) EdgeMetrics {
	env := NewEnvelope(TypeEdgeMetrics, now)
	if m.Timestamp > 0 {
		env.Timestamp = m.Timestamp
	}
	return EdgeMetrics{Envelope: env, Tag: tag, Realtime: true, EdgeMetrics: m}
}

// ImagingStatus republishes an engine status change.
type ImagingStatus struct {
	Envelope
	Tag
	engine.StatusChange
}

// NewImagingStatus builds an sdk_imaging_status message.
func NewImagingStatus(now time.Time, tag Tag, s engine.StatusChange) ImagingStatus {
	return ImagingStatus{Envelope: NewEnvelope(TypeImagingStatus, now), Tag: tag, StatusChange: s}
}

// SegmentReady announces a finalized segment and what happened to it.
type SegmentReady struct {
	Envelope
	Tag
	VideoPath     string `json:"video_path"`
	FrameCount    int    `json:"frame_count"`
	Final         bool   `json:"final"`
	SDKProcessing string `json:"sdk_processing"`
}

// NewSegmentReady builds a segment_ready message.
func NewSegmentReady(now time.Time, tag Tag, path string, frames int, final bool, disposition string) SegmentReady {
	return SegmentReady{
		Envelope:      NewEnvelope(TypeSegmentReady, now),
		Tag:           tag,
		VideoPath:     path,
		FrameCount:    frames,
		Final:         final,
		SDKProcessing: disposition,
	}
}
