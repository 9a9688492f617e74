// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocol defines the JSON messages exchanged with producers on the
// ingestion connection and pushed to broadcast subscribers. Every outbound
// message embeds Envelope; session-scoped messages also embed Tag.
package protocol

import "time"

// Message is anything that can be broadcast or sent as a reply.
type Message interface {
	MessageType() string
}

// Envelope carries the fields common to every outbound message.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

// MessageType implements Message.
func (e Envelope) MessageType() string { return e.Type }

// NewEnvelope stamps typ with now in milliseconds.
func NewEnvelope(typ string, now time.Time) Envelope {
	return Envelope{Type: typ, Timestamp: now.UnixMilli()}
}

// Tag attributes a message to a session and, when applicable, a segment.
type Tag struct {
	SessionID    string `json:"session_id,omitempty"`
	SegmentIndex *int   `json:"segment_index,omitempty"`
}

// SessionTag tags a message with a session only.
func SessionTag(sessionID string) Tag {
	return Tag{SessionID: sessionID}
}

// SegmentTag tags a message with a session and segment index.
func SegmentTag(sessionID string, index int) Tag {
	return Tag{SessionID: sessionID, SegmentIndex: &index}
}
