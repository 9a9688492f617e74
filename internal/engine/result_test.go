// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDecodeResult(t *testing.T) {
	bp := 118.5
	tests := []struct {
		name string
		line string
		want Result
	}{
		{
			name: "core metrics",
			line: `{"kind":"core_metrics","engine_timestamp":1700,"pulse_rate":72.5,"pulse_confidence":0.9,"pulse_trace":[[0.1,0.5],[0.2,0.6]],"apnea_detected":true,"phasic_blood_pressure":118.5}`,
			want: CoreMetrics{
				Timestamp:           1700,
				PulseRate:           72.5,
				PulseConfidence:     0.9,
				PulseTrace:          []Point{{0.1, 0.5}, {0.2, 0.6}},
				ApneaDetected:       true,
				PhasicBloodPressure: &bp,
			},
		},
		{
			name: "edge metrics",
			line: `{"kind":"edge_metrics","engine_timestamp":5,"breathing_upper_trace":[[1,2]],"talking":true}`,
			want: EdgeMetrics{Timestamp: 5, BreathingUpperTrace: []Point{{1, 2}}, Talking: true},
		},
		{
			name: "status change",
			line: `{"kind":"status","status_code":3,"status":"no face detected"}`,
			want: StatusChange{Code: 3, Description: "no face detected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResult([]byte(tt.line))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeResult() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeResultErrors(t *testing.T) {
	_, err := DecodeResult([]byte(`{"kind":"telemetry"}`))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = DecodeResult([]byte(`not json`))
	require.Error(t, err)
}

func TestPointEncodesAsPair(t *testing.T) {
	b, err := json.Marshal(CoreMetrics{PulseTrace: []Point{{1.5, 2}}})
	require.NoError(t, err)
	require.Contains(t, string(b), `"pulse_trace":[[1.5,2]]`)
	require.NotContains(t, string(b), "phasic_blood_pressure")
}

func TestIsNormalCompletion(t *testing.T) {
	require.True(t, IsNormalCompletion(nil))
	require.True(t, IsNormalCompletion(ErrInputExhausted))
	require.True(t, IsNormalCompletion(errors.Join(errors.New("ctx"), ErrInputExhausted)))
	require.False(t, IsNormalCompletion(ErrEngineFailed))
}
