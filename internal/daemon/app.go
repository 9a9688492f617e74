// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the vitalsd components together and owns their
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/vitalsd/internal/api"
	"github.com/ManuGH/vitalsd/internal/broadcast"
	"github.com/ManuGH/vitalsd/internal/config"
	"github.com/ManuGH/vitalsd/internal/dispatcher"
	"github.com/ManuGH/vitalsd/internal/engine"
	"github.com/ManuGH/vitalsd/internal/health"
	"github.com/ManuGH/vitalsd/internal/ingest"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/ManuGH/vitalsd/internal/recorder"
	"github.com/ManuGH/vitalsd/internal/retention"
	"github.com/ManuGH/vitalsd/internal/version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const mirrorConnectTimeout = 5 * time.Second

// App owns every component for the lifetime of the process.
type App struct {
	cfg    config.AppConfig
	deps   Deps
	mode   dispatcher.Mode
	logger zerolog.Logger

	broadcast  *broadcast.Server
	mirror     *broadcast.RedisMirror
	dispatcher *dispatcher.Dispatcher
	notify     *notifier
	recorder   *recorder.Recorder
	ingest     *ingest.Server
	health     *health.Manager
	ops        *api.Server
	sweeper    *retention.Sweeper

	reloadSignal os.Signal

	mu      sync.Mutex
	started bool
}

// New constructs the components in dependency order: broadcast, dispatcher,
// recorder, ingestion. Nothing listens until Run.
func New(deps Deps) (*App, error) {
	deps.applyDefaults()
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	cfg := deps.Config

	mode, ok := dispatcher.ParseMode(cfg.ProcessingMode)
	if !ok {
		mode = dispatcher.ModeSegment
	}

	a := &App{
		cfg:          cfg,
		deps:         deps,
		mode:         mode,
		logger:       log.WithComponent("daemon"),
		reloadSignal: syscall.SIGHUP,
	}

	mirror := deps.Mirror
	if mirror == nil && cfg.Broadcast.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorConnectTimeout)
		rm, err := broadcast.NewRedisMirror(ctx, broadcast.RedisConfig{
			Addr:     cfg.Broadcast.Redis.Addr,
			Password: cfg.Broadcast.Redis.Password,
			DB:       cfg.Broadcast.Redis.DB,
			Channel:  cfg.Broadcast.Redis.Channel,
		})
		cancel()
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "mirror.unavailable").
				Str("addr", cfg.Broadcast.Redis.Addr).
				Msg("redis mirror disabled")
		} else {
			a.mirror = rm
			mirror = rm
		}
	}

	a.broadcast = broadcast.NewServer(broadcast.Options{
		Addr:         cfg.BroadcastAddr(),
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		Mirror:       mirror,
	})

	a.dispatcher = dispatcher.New(dispatcher.Options{
		Factory:   deps.Factory,
		Publisher: a.broadcast,
		Settings: engine.Settings{
			Width:     cfg.Engine.Width,
			Height:    cfg.Engine.Height,
			APIKey:    cfg.Engine.APIKey,
			Headless:  cfg.Engine.Headless,
			Verbosity: cfg.Verbosity,
		},
		WarnDepth: cfg.Dispatch.QueueWarnDepth,
		Now:       deps.Now,
	})
	a.notify = newNotifier(a.broadcast)

	segmentSeconds := cfg.Recordings.SegmentSeconds
	if mode == dispatcher.ModeSession {
		// Whole-session mode records each session as a single file.
		segmentSeconds = 0
	}
	a.recorder = recorder.New(recorder.Options{
		Dir:            cfg.Recordings.Dir,
		DefaultFPS:     cfg.Recordings.FPS,
		SegmentSeconds: segmentSeconds,
		JPEGQuality:    cfg.Recordings.JPEGQuality,
		Now:            deps.Now,
	}, a.onSegmentReady)

	a.ingest = ingest.NewServer(ingest.Options{Addr: cfg.IngestAddr(), Now: deps.Now}, a.recorder)

	a.health = health.NewManager(version.Version)
	a.registerChecks()

	if cfg.Ops.Listen != "" {
		a.ops = api.NewServer(api.Options{
			Addr:      cfg.Ops.Listen,
			RateLimit: cfg.Ops.RateLimit,
		}, api.Deps{
			Health:      a.health,
			Recorder:    a.recorder,
			Dispatcher:  a.dispatcher,
			Subscribers: a.broadcast,
			Subscribe:   a.broadcast.WebSocketHandler(),
		})
	}

	sweeper, err := retention.New(retention.Options{
		Dir:           cfg.Recordings.Dir,
		MaxAge:        cfg.Recordings.Retention,
		Schedule:      cfg.Recordings.RetentionSchedule,
		ActiveSession: a.recorder.SessionID,
		InUse:         a.dispatcher.Pending,
		Now:           deps.Now,
	})
	switch {
	case errors.Is(err, retention.ErrDisabled):
	case err != nil:
		return nil, fmt.Errorf("retention: %w", err)
	default:
		a.sweeper = sweeper
	}

	return a, nil
}

// onSegmentReady runs under the recorder lock. It only enqueues work.
func (a *App) onSegmentReady(seg recorder.Segment) string {
	// The job waits for announced so segment_ready is broadcast before the
	// job's processing_started.
	announced := make(chan struct{})
	job := dispatcher.Job{Path: seg.Path, SessionID: seg.SessionID, SegmentIndex: seg.Index, Announced: announced}
	var disp dispatcher.Disposition
	switch {
	case a.mode == dispatcher.ModeSession && seg.Final:
		job.Mode, job.SegmentIndex = dispatcher.ModeSession, -1
		disp = a.dispatcher.Submit(job)
	case a.mode == dispatcher.ModeSession:
		disp = dispatcher.Skipped
	default:
		job.Mode = dispatcher.ModeSegment
		disp = a.dispatcher.Submit(job)
	}
	a.notify.publishThen(protocol.NewSegmentReady(
		a.deps.Now(),
		protocol.SegmentTag(seg.SessionID, seg.Index),
		seg.Path,
		seg.Frames,
		seg.Final,
		string(disp),
	), announced)
	return string(disp)
}

func (a *App) registerChecks() {
	a.health.RegisterChecker(health.NewDirChecker("recordings_dir", a.cfg.Recordings.Dir))
	a.health.RegisterChecker(health.NewDiskSpaceChecker(a.cfg.Recordings.Dir))
	a.health.RegisterChecker(health.NewListenerChecker("ingest_listener", a.ingest.Addr))
	a.health.RegisterChecker(health.NewListenerChecker("broadcast_listener", a.broadcast.Addr))
	a.health.RegisterChecker(health.EngineChecker(a.deps.Factory.Available))
	a.health.RegisterChecker(health.QueueChecker(a.dispatcher.Depth, a.cfg.Dispatch.QueueWarnDepth))
}

// IngestAddr returns the bound ingestion address, or nil before Run.
func (a *App) IngestAddr() net.Addr { return a.ingest.Addr() }

// BroadcastAddr returns the bound broadcast address, or nil before Run.
func (a *App) BroadcastAddr() net.Addr { return a.broadcast.Addr() }

// OpsAddr returns the bound ops address, or nil when disabled or before Run.
func (a *App) OpsAddr() net.Addr {
	if a.ops == nil {
		return nil
	}
	return a.ops.Addr()
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down in order. Bind failures are returned wrapped in ErrStartFailed.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	a.logger.Info().
		Str(log.FieldEvent, "daemon.starting").
		Str("version", version.Version).
		Str(log.FieldMode, string(a.mode)).
		Str(log.FieldRecordingDir, a.cfg.Recordings.Dir).
		Int(log.FieldFPS, a.cfg.Recordings.FPS).
		Int("segment_seconds", a.cfg.Recordings.SegmentSeconds).
		Msg("starting vitalsd")
	if a.mode == dispatcher.ModeSession {
		a.logger.Warn().
			Str(log.FieldEvent, "daemon.deprecated_mode").
			Msg("whole-session processing mode is deprecated; use segment mode")
	}

	if err := health.PerformStartupChecks(ctx, a.cfg); err != nil {
		a.shutdownQuietly(ctx)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	a.notify.start()
	a.dispatcher.Start(ctx)

	if err := a.broadcast.Start(ctx); err != nil {
		a.shutdownQuietly(ctx)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if err := a.ingest.Start(ctx); err != nil {
		a.shutdownQuietly(ctx)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if a.ops != nil {
		if err := a.ops.Start(ctx); err != nil {
			a.shutdownQuietly(ctx)
			return fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
	}
	if a.sweeper != nil {
		a.sweeper.Start()
	}

	a.broadcast.Publish(protocol.NewStatus(a.deps.Now(), protocol.StatusReady, "vitalsd ready"))
	a.logger.Info().
		Str(log.FieldEvent, "daemon.ready").
		Str("ingest_addr", a.ingest.Addr().String()).
		Str("broadcast_addr", a.broadcast.Addr().String()).
		Msg("vitalsd ready")

	g, gctx := errgroup.WithContext(ctx)
	a.runReload(gctx, g)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	_ = g.Wait()

	a.logger.Info().Str(log.FieldEvent, "daemon.shutdown_signal").Msg("shutdown signal received")
	return a.shutdown(ctx)
}

// runReload watches the config file and handles SIGHUP. Both are
// best-effort.
func (a *App) runReload(ctx context.Context, g *errgroup.Group) {
	holder := a.deps.Holder
	if holder == nil {
		return
	}
	if err := holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	if a.reloadSignal == nil {
		return
	}
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, a.reloadSignal)
		defer signal.Stop(hup)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				a.logger.Info().
					Str(log.FieldEvent, "config.reload_signal").
					Str("signal", a.reloadSignal.String()).
					Msg("received reload signal, reloading config")
				if err := holder.Reload(ctx); err != nil {
					a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
				}
			}
		}
	})
}

// shutdownHooks lists the shutdown steps in execution order.
func (a *App) shutdownHooks() []namedHook {
	hooks := []namedHook{
		{"ingest", func(context.Context) error { return a.ingest.Stop() }},
		{"legacy_job", a.dispatcher.WaitLegacy},
		{"dispatcher", a.dispatcher.Drain},
		{"notify", a.notify.close},
		{"status_shutdown", func(context.Context) error {
			a.broadcast.Publish(protocol.NewStatus(a.deps.Now(), protocol.StatusShutdown, "vitalsd shutting down"))
			return nil
		}},
		{"broadcast", func(context.Context) error { return a.broadcast.Stop() }},
	}
	if a.mirror != nil {
		hooks = append(hooks, namedHook{"mirror", func(context.Context) error { return a.mirror.Close() }})
	}
	if a.ops != nil {
		hooks = append(hooks, namedHook{"ops", a.ops.Shutdown})
	}
	if a.sweeper != nil {
		hooks = append(hooks, namedHook{"retention", a.sweeper.Stop})
	}
	if a.deps.Holder != nil {
		hooks = append(hooks, namedHook{"config_watcher", func(context.Context) error {
			a.deps.Holder.Stop()
			return nil
		}})
	}
	return hooks
}

// shutdown runs the hooks under ShutdownTimeout, detached from ctx.
func (a *App) shutdown(ctx context.Context) error {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err := runHooks(shutdownCtx, a.logger, a.shutdownHooks())
	if err == nil {
		a.logger.Info().
			Str(log.FieldEvent, "daemon.stopped").
			Dur("duration", time.Since(start)).
			Msg("vitalsd stopped cleanly")
	}
	return err
}

// shutdownQuietly releases whatever started before a startup failure.
func (a *App) shutdownQuietly(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.startup_cleanup_failed").Msg("cleanup after failed start reported errors")
	}
}
