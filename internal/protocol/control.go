// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Control request types sent by producers.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
)

// Reply types sent back to producers.
const (
	TypeSessionStarted  = "session_started"
	TypeSessionEnded    = "session_ended"
	TypeControlResponse = "control_response"
)

var (
	// ErrMalformedJSON is returned for control payloads that are not a JSON object.
	ErrMalformedJSON = errors.New("invalid JSON")
	// ErrUnknownType is returned for control messages with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// IsControl reports whether a framed payload is a control message rather than
// an encoded video frame.
func IsControl(payload []byte) bool {
	return len(payload) > 0 && payload[0] == '{'
}

// ControlRequest is a decoded session_start or session_end message. Zero
// numeric fields mean "not supplied".
type ControlRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	FPS       int    `json:"fps,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// ParseControl decodes and validates a control payload.
func ParseControl(payload []byte) (ControlRequest, error) {
	var req ControlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ControlRequest{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	switch req.Type {
	case TypeSessionStart, TypeSessionEnd:
		return req, nil
	default:
		return req, fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}
}

// SessionStarted acknowledges a session_start.
type SessionStarted struct {
	Envelope
	SessionID        string `json:"session_id"`
	VideoPath        string `json:"video_path"`
	FPS              int    `json:"fps"`
	FramesPerSegment int    `json:"frames_per_segment"`
}

// NewSessionStarted builds a session_started reply.
func NewSessionStarted(now time.Time, sessionID, videoPath string, fps, framesPerSegment int) SessionStarted {
	return SessionStarted{
		Envelope:         NewEnvelope(TypeSessionStarted, now),
		SessionID:        sessionID,
		VideoPath:        videoPath,
		FPS:              fps,
		FramesPerSegment: framesPerSegment,
	}
}

// SessionEnded acknowledges a session_end. FinalSegment and VideoPath both
// carry the last finalized segment path (empty if none was produced).
type SessionEnded struct {
	Envelope
	SessionID     string `json:"session_id"`
	FinalSegment  string `json:"final_segment"`
	VideoPath     string `json:"video_path"`
	FrameCount    int    `json:"frame_count"`
	SegmentCount  int    `json:"segment_count"`
	SDKProcessing string `json:"sdk_processing"`
}

// NewSessionEnded builds a session_ended reply.
func NewSessionEnded(now time.Time, sessionID, finalSegment string, frames, segments int, disposition string) SessionEnded {
	return SessionEnded{
		Envelope:      NewEnvelope(TypeSessionEnded, now),
		SessionID:     sessionID,
		FinalSegment:  finalSegment,
		VideoPath:     finalSegment,
		FrameCount:    frames,
		SegmentCount:  segments,
		SDKProcessing: disposition,
	}
}

// ControlResponse is the generic reply; used for errors.
type ControlResponse struct {
	Envelope
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewControlError builds an error control_response.
func NewControlError(now time.Time, message string) ControlResponse {
	return ControlResponse{
		Envelope: NewEnvelope(TypeControlResponse, now),
		Status:   "error",
		Message:  message,
	}
}
