// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatcher

import "time"

// Mode selects how a job is processed.
type Mode string

const (
	// ModeSegment queues a mid-session segment for the single worker.
	ModeSegment Mode = "segment"
	// ModeSession processes a whole-session file on its own goroutine.
	//
	// Deprecated: segment mode is the supported pipeline.
	ModeSession Mode = "session"
)

// ParseMode validates a processing mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeSegment, ModeSession:
		return Mode(s), true
	default:
		return "", false
	}
}

// Disposition is the immediate outcome of a submission.
type Disposition string

const (
	SegmentQueued Disposition = "segment_queued"
	Started       Disposition = "started"
	Busy          Disposition = "busy"
	Skipped       Disposition = "skipped"
	Unavailable   Disposition = "unavailable"
)

// Job is one unit of analysis work.
type Job struct {
	ID           string
	Path         string
	SessionID    string
	SegmentIndex int
	Mode         Mode
	EnqueuedAt   time.Time
	// Announced, when set, holds the job back until it is closed. Callers
	// close it once their own notification about the job has gone out, so
	// subscribers see that notification before the job's status messages.
	Announced <-chan struct{}
}
