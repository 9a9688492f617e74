// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package retention removes old recording files on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/ManuGH/vitalsd/internal/recorder"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs a sweep every ten minutes.
const DefaultSchedule = "@every 10m"

// ErrDisabled is returned by New when MaxAge is not positive.
var ErrDisabled = errors.New("retention disabled")

// Options configure a Sweeper.
type Options struct {
	Dir      string
	MaxAge   time.Duration
	Schedule string
	// ActiveSession returns the id of the recording session, if any. Its
	// files are never removed.
	ActiveSession func() string
	// InUse reports whether a file, by full path, is still needed, for
	// example while it waits for analysis. Such files are kept.
	InUse func(path string) bool
	Now   func() time.Time
}

// Result summarises one sweep.
type Result struct {
	Deleted int
	Bytes   int64
	Kept    int
}

// Sweeper deletes recording files older than MaxAge.
type Sweeper struct {
	opts   Options
	cron   *cron.Cron
	logger zerolog.Logger
}

// New validates opts and schedules the sweep. Call Start to run it.
func New(opts Options) (*Sweeper, error) {
	if opts.MaxAge <= 0 {
		return nil, ErrDisabled
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ActiveSession == nil {
		opts.ActiveSession = func() string { return "" }
	}
	if opts.InUse == nil {
		opts.InUse = func(string) bool { return false }
	}
	s := &Sweeper{
		opts:   opts,
		cron:   cron.New(),
		logger: log.WithComponent("retention"),
	}
	if _, err := s.cron.AddFunc(opts.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start launches the scheduler.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("event", "retention.started").
		Str("schedule", s.opts.Schedule).
		Dur("max_age", s.opts.MaxAge).
		Str(log.FieldRecordingDir, s.opts.Dir).
		Msg("recording retention enabled")
}

// Stop halts the scheduler and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	res, err := s.Sweep()
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "retention.sweep_failed").Msg("retention sweep failed")
		return
	}
	if res.Deleted > 0 {
		s.logger.Info().
			Str("event", "retention.swept").
			Int("deleted", res.Deleted).
			Int64("bytes", res.Bytes).
			Int("kept", res.Kept).
			Msg("old recordings removed")
	}
}

// Sweep removes recording files last modified before now-MaxAge. Files that
// do not look like recordings, files of the active session and files InUse
// reports are kept.
func (s *Sweeper) Sweep() (Result, error) {
	var res Result
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return res, fmt.Errorf("read recordings dir: %w", err)
	}

	cutoff := s.opts.Now().Add(-s.opts.MaxAge)
	activePrefix := ""
	if id := s.opts.ActiveSession(); id != "" {
		activePrefix = recorder.SanitizeID(id) + "_"
	}

	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !recorder.IsRecordingFile(name) {
			continue
		}
		if activePrefix != "" && strings.HasPrefix(name, activePrefix) {
			res.Kept++
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			res.Kept++
			continue
		}
		path := filepath.Join(s.opts.Dir, name)
		if s.opts.InUse(path) {
			res.Kept++
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		res.Deleted++
		res.Bytes += info.Size()
		metrics.IncRetentionDeleted(kindOf(name))
	}
	return res, errors.Join(errs...)
}

func kindOf(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".avi") {
		return "segment"
	}
	return "manifest"
}
