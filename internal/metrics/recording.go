// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionActive is 1 while a recording session is open.
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitalsd_recording_session_active",
		Help: "Whether a recording session is currently active (1) or not (0)",
	})

	// SessionsTotal counts recording sessions by how they ended.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_recording_sessions_total",
		Help: "Total number of recording sessions by end reason",
	}, []string{"reason"})

	// SegmentsFinalizedTotal counts finalized segments by reason.
	SegmentsFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_recording_segments_finalized_total",
		Help: "Total number of finalized segments by reason (rollover, stop, empty)",
	}, []string{"reason"})

	// SegmentFrames observes frames per finalized segment.
	SegmentFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vitalsd_recording_segment_frames",
		Help:    "Number of frames per finalized segment",
		Buckets: []float64{1, 30, 60, 150, 300, 600, 900, 1800},
	})

	// FramesResizedTotal counts frames that had to be resized to the session geometry.
	FramesResizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsd_recording_frames_resized_total",
		Help: "Total number of frames resized to the session geometry",
	})
)

// SetSessionActive toggles the active session gauge.
func SetSessionActive(active bool) {
	if active {
		SessionActive.Set(1)
		return
	}
	SessionActive.Set(0)
}

// IncSessionEnded records a session end ("explicit", "disconnect", "shutdown").
func IncSessionEnded(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	SessionsTotal.WithLabelValues(reason).Inc()
}

// ObserveSegmentFinalized records a finalized segment and its frame count.
func ObserveSegmentFinalized(reason string, frames int) {
	SegmentsFinalizedTotal.WithLabelValues(reason).Inc()
	if frames > 0 {
		SegmentFrames.Observe(float64(frames))
	}
}

// IncFrameResized records a frame resized to the session geometry.
func IncFrameResized() {
	FramesResizedTotal.Inc()
}
