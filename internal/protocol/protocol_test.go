// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/vitalsd/internal/engine"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1_700_000_000_123)

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestIsControl(t *testing.T) {
	require.True(t, IsControl([]byte(`{"type":"session_start"}`)))
	require.False(t, IsControl([]byte{0xFF, 0xD8}))
	require.False(t, IsControl(nil))
	require.False(t, IsControl([]byte(` {"type":"x"}`)))
}

func TestParseControl(t *testing.T) {
	req, err := ParseControl([]byte(`{"type":"session_start","session_id":"abc","fps":15,"width":640,"height":480}`))
	require.NoError(t, err)
	require.Equal(t, ControlRequest{Type: TypeSessionStart, SessionID: "abc", FPS: 15, Width: 640, Height: 480}, req)

	req, err = ParseControl([]byte(`{"type":"session_end"}`))
	require.NoError(t, err)
	require.Empty(t, req.SessionID)

	_, err = ParseControl([]byte(`{"type":"reboot"}`))
	require.ErrorIs(t, err, ErrUnknownType)
	require.Equal(t, "unknown message type: reboot", err.Error())

	_, err = ParseControl([]byte(`{"type":`))
	require.ErrorIs(t, err, ErrMalformedJSON)

	_, err = ParseControl([]byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestReplyShapes(t *testing.T) {
	started := toMap(t, NewSessionStarted(fixedNow, "s1", "/tmp/s1_seg0000_1.avi", 30, 300))
	require.Equal(t, map[string]any{
		"type":               "session_started",
		"timestamp":          float64(1_700_000_000_123),
		"session_id":         "s1",
		"video_path":         "/tmp/s1_seg0000_1.avi",
		"fps":                float64(30),
		"frames_per_segment": float64(300),
	}, started)

	ended := toMap(t, NewSessionEnded(fixedNow, "s1", "/tmp/last.avi", 185, 3, "segment_queued"))
	require.Equal(t, "session_ended", ended["type"])
	require.Equal(t, "/tmp/last.avi", ended["final_segment"])
	require.Equal(t, "/tmp/last.avi", ended["video_path"])
	require.Equal(t, float64(185), ended["frame_count"])
	require.Equal(t, float64(3), ended["segment_count"])
	require.Equal(t, "segment_queued", ended["sdk_processing"])

	errReply := toMap(t, NewControlError(fixedNow, "No session in progress"))
	require.Equal(t, map[string]any{
		"type":      "control_response",
		"status":    "error",
		"message":   "No session in progress",
		"timestamp": float64(1_700_000_000_123),
	}, errReply)
}

func TestSegmentTagKeepsZeroIndex(t *testing.T) {
	m := toMap(t, NewSegmentReady(fixedNow, SegmentTag("s1", 0), "/p", 90, false, "segment_queued"))
	require.Equal(t, float64(0), m["segment_index"])
	require.Equal(t, "s1", m["session_id"])

	m = toMap(t, NewStatus(fixedNow, StatusReady, ""))
	require.NotContains(t, m, "segment_index")
	require.NotContains(t, m, "message")
}

func TestMetricsEnvelopeComposition(t *testing.T) {
	m := toMap(t, NewMetrics(fixedNow, SegmentTag("s1", 2), engine.CoreMetrics{
		Timestamp:     42,
		PulseRate:     71.5,
		BreathingRate: 14,
		PulseTrace:    []engine.Point{{0.5, 1}},
	}))
	require.Equal(t, "metrics", m["type"])
	require.Equal(t, float64(42), m["timestamp"])
	require.Equal(t, "presage_sdk", m["source"])
	require.Equal(t, float64(2), m["segment_index"])
	require.Equal(t, 71.5, m["pulse_rate"])
	require.Equal(t, []any{[]any{0.5, float64(1)}}, m["pulse_trace"])

	edge := toMap(t, NewEdgeMetrics(fixedNow, SegmentTag("s1", 2), engine.EdgeMetrics{Talking: true}))
	require.Equal(t, "edge_metrics", edge["type"])
	require.Equal(t, true, edge["realtime"])
	require.Equal(t, float64(1_700_000_000_123), edge["timestamp"])

	img := toMap(t, NewImagingStatus(fixedNow, SessionTag("s1"), engine.StatusChange{Code: 4, Description: "face lost"}))
	require.Equal(t, "sdk_imaging_status", img["type"])
	require.Equal(t, float64(4), img["status_code"])
	require.Equal(t, "face lost", img["status"])
}

func TestSDKStatusMessages(t *testing.T) {
	done := toMap(t, NewSDKCompleted(fixedNow, SegmentTag("s", 1), "segment", 0))
	require.Equal(t, "processing_completed", done["status"])
	require.Equal(t, float64(0), done["metrics_count"])

	failed := toMap(t, NewSDKError(fixedNow, SessionTag("s"), "session", "boom"))
	require.Equal(t, "error", failed["status"])
	require.Equal(t, "boom", failed["error"])
	require.NotContains(t, failed, "metrics_count")

	require.Equal(t, TypeSDKStatus, NewSDKStarted(fixedNow, Tag{}, "segment", "/p").MessageType())
}
