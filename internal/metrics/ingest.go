// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the daemon's Prometheus collectors and small helpers
// that keep label values bounded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestConnectionsTotal counts accepted producer connections.
	IngestConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsd_ingest_connections_total",
		Help: "Total number of accepted ingestion connections",
	})

	// IngestFramesTotal counts received video frames by outcome.
	IngestFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_ingest_frames_total",
		Help: "Total number of video frames received by result",
	}, []string{"result"})

	// IngestControlTotal counts control messages by type and result.
	IngestControlTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_ingest_control_messages_total",
		Help: "Total number of control messages by type and result",
	}, []string{"type", "result"})

	// IngestBytesTotal counts framed payload bytes read from producers.
	IngestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsd_ingest_bytes_total",
		Help: "Total number of payload bytes read from ingestion connections",
	})
)

// IncIngestConnection records an accepted producer connection.
func IncIngestConnection() {
	IngestConnectionsTotal.Inc()
}

// IncFrame records a frame outcome ("recorded", "decode_error", "rejected").
func IncFrame(result string) {
	if result == "" {
		result = "unknown"
	}
	IngestFramesTotal.WithLabelValues(result).Inc()
}

// IncControl records a control message outcome. Unrecognised types are folded
// into "unknown" so clients cannot inflate label cardinality.
func IncControl(msgType string, ok bool) {
	switch msgType {
	case "session_start", "session_end":
	default:
		msgType = "unknown"
	}
	result := "error"
	if ok {
		result = "ok"
	}
	IngestControlTotal.WithLabelValues(msgType, result).Inc()
}

// AddIngestBytes records payload bytes read from the ingestion stream.
func AddIngestBytes(n int) {
	if n > 0 {
		IngestBytesTotal.Add(float64(n))
	}
}
