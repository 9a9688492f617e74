// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// Recording attributes
	SessionIDKey    = "vitals.session_id"
	SegmentIndexKey = "vitals.segment_index"
	SegmentPathKey  = "vitals.segment_path"

	// Job attributes
	JobIDKey       = "job.id"
	JobModeKey     = "job.mode"
	JobStatusKey   = "job.status"
	JobMetricsKey  = "job.metrics_count"
	JobQueueWaitMS = "job.queue_wait_ms"

	// Engine attributes
	EngineWidthKey  = "engine.width"
	EngineHeightKey = "engine.height"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// JobAttributes creates analysis-job span attributes. A negative segment
// index is omitted.
func JobAttributes(jobID, mode, sessionID string, segmentIndex int, path string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobModeKey, mode),
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SegmentPathKey, path),
	}
	if segmentIndex >= 0 {
		attrs = append(attrs, attribute.Int(SegmentIndexKey, segmentIndex))
	}
	return attrs
}

// EngineAttributes creates engine-invocation span attributes.
func EngineAttributes(width, height int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(EngineWidthKey, width),
		attribute.Int(EngineHeightKey, height),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// JobCompletedAttributes records the outcome of a finished job.
func JobCompletedAttributes(status string, metricsCount int, queueWait time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobStatusKey, status),
		attribute.Int(JobMetricsKey, metricsCount),
		attribute.Int64(JobQueueWaitMS, queueWait.Milliseconds()),
	}
}
