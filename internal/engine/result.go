// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"encoding/json"
	"fmt"
)

// Result kinds as they appear on the engine's output stream.
const (
	KindCoreMetrics  = "core_metrics"
	KindEdgeMetrics  = "edge_metrics"
	KindStatusChange = "status"
)

// Result is one output of a running engine. The set of implementations is
// closed: CoreMetrics, EdgeMetrics and StatusChange.
type Result interface {
	Kind() string
	isResult()
}

// Point is a (time, value) sample; it encodes as a two-element JSON array.
type Point [2]float64

// CoreMetrics are scored measurements over a window of the input.
type CoreMetrics struct {
	// Timestamp in milliseconds as reported by the engine; zero when absent.
	Timestamp int64 `json:"engine_timestamp,omitempty"`

	PulseRate       float64 `json:"pulse_rate"`
	PulseConfidence float64 `json:"pulse_confidence"`
	PulseTrace      []Point `json:"pulse_trace"`

	BreathingRate       float64 `json:"breathing_rate"`
	BreathingConfidence float64 `json:"breathing_confidence"`
	BreathingAmplitude  []Point `json:"breathing_amplitude"`
	BreathingUpperTrace []Point `json:"breathing_upper_trace"`

	ApneaDetected bool `json:"apnea_detected"`
	Blinking      bool `json:"blinking"`
	Talking       bool `json:"talking"`

	MeasurementID       string   `json:"measurement_id,omitempty"`
	UploadTimestamp     string   `json:"upload_timestamp,omitempty"`
	PhasicBloodPressure *float64 `json:"phasic_blood_pressure,omitempty"`
}

// EdgeMetrics are low-latency per-frame measurements.
type EdgeMetrics struct {
	Timestamp int64 `json:"engine_timestamp,omitempty"`

	PulseRate           float64 `json:"pulse_rate,omitempty"`
	BreathingRate       float64 `json:"breathing_rate,omitempty"`
	PulseTrace          []Point `json:"pulse_trace,omitempty"`
	BreathingUpperTrace []Point `json:"breathing_upper_trace,omitempty"`
	Blinking            bool    `json:"blinking"`
	Talking             bool    `json:"talking"`
}

// StatusChange reports an imaging status transition (face lost, too dark, ...).
type StatusChange struct {
	Code        int    `json:"status_code"`
	Description string `json:"status"`
}

func (CoreMetrics) Kind() string  { return KindCoreMetrics }
func (EdgeMetrics) Kind() string  { return KindEdgeMetrics }
func (StatusChange) Kind() string { return KindStatusChange }

func (CoreMetrics) isResult()  {}
func (EdgeMetrics) isResult()  {}
func (StatusChange) isResult() {}

// DecodeResult parses one line of the engine's NDJSON output stream. Each
// line is an object with a "kind" discriminator and the result fields.
func DecodeResult(line []byte) (Result, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decode engine output: %w", err)
	}
	switch head.Kind {
	case KindCoreMetrics:
		var m CoreMetrics
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		return m, nil
	case KindEdgeMetrics:
		var m EdgeMetrics
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		return m, nil
	case KindStatusChange:
		var s StatusChange
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Kind)
	}
}
