// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("daemon already started")

	// ErrStartFailed wraps listener bind failures during startup. The
	// process must exit non-zero when Run returns it.
	ErrStartFailed = errors.New("daemon failed to start")

	// ErrMissingFactory is returned when no analysis engine factory is available.
	ErrMissingFactory = errors.New("engine factory is required")
)
