// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
)

// Manifest lists the segments of one session. It is rewritten atomically
// after every finalized segment so readers never see a partial document.
type Manifest struct {
	SessionID        string          `json:"session_id"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	FPS              int             `json:"fps"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	FramesPerSegment int             `json:"frames_per_segment"`
	TotalFrames      int             `json:"total_frames"`
	Segments         []ManifestEntry `json:"segments"`
}

// ManifestEntry describes one finalized segment.
type ManifestEntry struct {
	Index         int       `json:"index"`
	Path          string    `json:"path"`
	Frames        int       `json:"frames"`
	Final         bool      `json:"final"`
	StartedAt     time.Time `json:"started_at"`
	FinalizedAt   time.Time `json:"finalized_at"`
	SDKProcessing string    `json:"sdk_processing,omitempty"`
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending manifest: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a session manifest.
func ReadManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
