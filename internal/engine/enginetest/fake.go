// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package enginetest provides an in-memory engine.Factory for tests.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/engine"
)

// Script describes how a fake engine behaves for one input path.
type Script struct {
	Results  []engine.Result
	Delay    time.Duration
	InitErr  error
	RunErr   error
	BlockRun bool
}

// Call records one engine invocation.
type Call struct {
	Settings engine.Settings
	Start    time.Time
	End      time.Time
}

// Factory hands out fake engines. Scripts are looked up by input path; inputs
// without a script use Default.
type Factory struct {
	mu      sync.Mutex
	Scripts map[string]Script
	Default Script
	NewErr  error
	Down    bool

	calls   []Call
	running int
	maxRun  int
	closed  int
}

// NewFactory returns a Factory whose engines succeed immediately.
func NewFactory() *Factory {
	return &Factory{Scripts: make(map[string]Script)}
}

// Set registers a script for path.
func (f *Factory) Set(path string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scripts[path] = s
}

// Available implements engine.Factory.
func (f *Factory) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Down
}

// New implements engine.Factory.
func (f *Factory) New(s engine.Settings) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	script, ok := f.Scripts[s.InputPath]
	if !ok {
		script = f.Default
	}
	return &fakeEngine{f: f, settings: s, script: script}, nil
}

// Calls returns the invocations in start order.
func (f *Factory) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// MaxConcurrent returns the highest number of engines observed running at once.
func (f *Factory) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRun
}

// Closed returns how many engines were closed.
func (f *Factory) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeEngine struct {
	f        *Factory
	settings engine.Settings
	script   Script
}

func (e *fakeEngine) Initialize(ctx context.Context) error {
	return e.script.InitErr
}

func (e *fakeEngine) Run(ctx context.Context, out chan<- engine.Result) error {
	e.f.mu.Lock()
	idx := len(e.f.calls)
	e.f.calls = append(e.f.calls, Call{Settings: e.settings, Start: time.Now()})
	e.f.running++
	if e.f.running > e.f.maxRun {
		e.f.maxRun = e.f.running
	}
	e.f.mu.Unlock()

	defer func() {
		e.f.mu.Lock()
		e.f.running--
		e.f.calls[idx].End = time.Now()
		e.f.mu.Unlock()
	}()

	for _, r := range e.script.Results {
		out <- r
	}
	if e.script.BlockRun {
		<-ctx.Done()
		return ctx.Err()
	}
	if e.script.Delay > 0 {
		select {
		case <-time.After(e.script.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.script.RunErr != nil {
		return e.script.RunErr
	}
	return engine.ErrInputExhausted
}

func (e *fakeEngine) Close() error {
	e.f.mu.Lock()
	e.f.closed++
	e.f.mu.Unlock()
	return nil
}
