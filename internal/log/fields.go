// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID    = "session_id"
	FieldJobID        = "job_id"
	FieldSegmentIndex = "segment_index"
	FieldSubscriberID = "subscriber_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldMode      = "mode"

	// Media fields
	FieldFPS        = "fps"
	FieldResolution = "resolution"
	FieldFrameCount = "frame_count"
	FieldFrameBytes = "frame_bytes"

	// Path fields
	FieldPath         = "path"
	FieldRecordingDir = "recordings_dir"

	// Network fields
	FieldRemoteAddr = "remote_addr"
	FieldListenAddr = "listen_addr"
	FieldTransport  = "transport"

	// Queue fields
	FieldQueueDepth = "queue_depth"
)
