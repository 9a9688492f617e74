// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine defines the contract with the vital-signs analysis engine:
// per-job settings, the closed set of results it produces and the
// Engine/Factory interfaces the dispatcher drives.
package engine

import (
	"context"
	"errors"
)

// ErrInputExhausted is returned by Run when the engine reached the end of its
// input file. It marks normal completion, not a failure.
var ErrInputExhausted = errors.New("engine: input exhausted")

// ErrUnavailable is returned by a Factory that cannot construct engines at all
// (for example because no engine executable is configured).
var ErrUnavailable = errors.New("engine: unavailable")

// ErrUnknownKind is returned when the engine emits a result kind this build does not know.
var ErrUnknownKind = errors.New("engine: unknown result kind")

// Settings configure one engine invocation.
type Settings struct {
	InputPath string
	Width     int
	Height    int
	APIKey    string
	Headless  bool
	Verbosity int
}

// Engine processes exactly one input file. Implementations are single use:
// Initialize, then Run, then Close.
type Engine interface {
	// Initialize prepares the engine. An error aborts the job.
	Initialize(ctx context.Context) error
	// Run blocks until the input is consumed, sending every result on out.
	// Run never closes out. Returning nil or ErrInputExhausted is success.
	Run(ctx context.Context, out chan<- Result) error
	// Close releases resources. Safe to call after a failed Initialize.
	Close() error
}

// Factory constructs a fresh Engine per job.
type Factory interface {
	New(s Settings) (Engine, error)
	// Available reports whether New can be expected to succeed.
	Available() bool
}

// IsNormalCompletion reports whether a Run error means the input was consumed.
func IsNormalCompletion(err error) bool {
	return err == nil || errors.Is(err, ErrInputExhausted)
}
