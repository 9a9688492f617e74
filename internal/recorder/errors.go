// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import "errors"

var (
	// ErrSessionActive is returned by StartSession while another session records.
	ErrSessionActive = errors.New("session already in progress")
	// ErrNotRecording is returned by AddFrame while idle.
	ErrNotRecording = errors.New("not recording")
	// ErrEmptyFrame is returned for frames without pixels.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrNoSession is returned by EndSession while idle.
	ErrNoSession = errors.New("no session in progress")
	// ErrSessionMismatch is returned by EndSession when the id does not match.
	ErrSessionMismatch = errors.New("session id mismatch")
	// ErrBadHints is returned by StartSession for out-of-range geometry hints.
	ErrBadHints = errors.New("invalid session hints")
)
