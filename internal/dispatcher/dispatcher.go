// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatcher serializes analysis work: a single worker drains an
// unbounded FIFO of segment jobs, and a deprecated whole-session mode runs one
// job at a time on its own goroutine. At most one engine runs at any moment.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/engine"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/ManuGH/vitalsd/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultWarnDepth is the queue depth above which every enqueue logs a warning.
const DefaultWarnDepth = 10

// Publisher receives every message the dispatcher produces.
type Publisher interface {
	Publish(msg protocol.Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(protocol.Message)

// Publish implements Publisher.
func (f PublisherFunc) Publish(msg protocol.Message) { f(msg) }

// Options configure a Dispatcher.
type Options struct {
	Factory   engine.Factory
	Publisher Publisher
	// Settings is the template for every engine; InputPath is set per job.
	Settings  engine.Settings
	WarnDepth int
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Stats is a snapshot for observability.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	Busy          bool   `json:"busy"`
	LegacyRunning bool   `json:"legacy_running"`
	Draining      bool   `json:"draining"`
	Completed     uint64 `json:"completed"`
	Failed        uint64 `json:"failed"`
}

// Dispatcher owns the job queue and the worker.
type Dispatcher struct {
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Job
	closed    bool
	busy      bool
	started   bool
	completed uint64
	failed    uint64

	// activePath is the input of the engine run in progress, if any.
	activePath string

	// runMu is held for the duration of every engine invocation.
	runMu         sync.Mutex
	legacyRunning bool
	legacyWG      sync.WaitGroup

	jobCtx     context.Context
	cancelJobs context.CancelFunc
	workerDone chan struct{}
}

// New creates a Dispatcher. Call Start to launch the worker.
func New(opts Options) *Dispatcher {
	if opts.WarnDepth <= 0 {
		opts.WarnDepth = DefaultWarnDepth
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer("vitalsd/dispatcher")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Publisher == nil {
		opts.Publisher = PublisherFunc(func(protocol.Message) {})
	}
	d := &Dispatcher{
		opts:       opts,
		logger:     log.WithComponent("dispatcher"),
		workerDone: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	d.jobCtx, d.cancelJobs = context.WithCancel(context.Background())
	return d
}

// Start launches the worker. Jobs are not cancelled when ctx ends; they are
// drained by Drain.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	// Keep values (trace, logger fields) but not cancellation.
	base := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithCancel(base)
	d.mu.Lock()
	d.cancelJobs()
	d.jobCtx, d.cancelJobs = jobCtx, cancel
	d.mu.Unlock()

	go d.worker()
	d.logger.Info().Str("event", "dispatcher.started").Msg("analysis worker started")
}

// Submit routes a job to its mode.
func (d *Dispatcher) Submit(job Job) Disposition {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Mode == "" {
		job.Mode = ModeSegment
	}
	job.EnqueuedAt = d.opts.Now()

	disp := d.submit(job)
	metrics.IncSubmit(string(job.Mode), string(disp))
	return disp
}

func (d *Dispatcher) submit(job Job) Disposition {
	logger := d.jobLogger(job)
	if d.opts.Factory == nil || !d.opts.Factory.Available() {
		logger.Warn().Str("event", "dispatcher.unavailable").Msg("analysis engine unavailable, segment not processed")
		return Unavailable
	}
	if job.Path == "" {
		return Skipped
	}

	switch job.Mode {
	case ModeSession:
		return d.startLegacy(job, logger)
	default:
		return d.enqueue(job, logger)
	}
}

// QueueSegment enqueues a mid-session segment. It never blocks.
func (d *Dispatcher) QueueSegment(path, sessionID string, index int) Disposition {
	return d.Submit(Job{Path: path, SessionID: sessionID, SegmentIndex: index, Mode: ModeSegment})
}

// ProcessVideoAsync processes a whole-session file on its own goroutine and
// reports Busy instead of queuing when any run is active.
//
// Deprecated: use QueueSegment.
func (d *Dispatcher) ProcessVideoAsync(path, sessionID string) Disposition {
	return d.Submit(Job{Path: path, SessionID: sessionID, SegmentIndex: -1, Mode: ModeSession})
}

func (d *Dispatcher) enqueue(job Job, logger zerolog.Logger) Disposition {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logger.Warn().Str("event", "dispatcher.rejected_draining").Msg("dispatcher draining, segment not queued")
		return Skipped
	}
	d.queue = append(d.queue, job)
	depth := len(d.queue)
	d.cond.Signal()
	d.mu.Unlock()

	metrics.SetQueueDepth(depth)
	ev := logger.Info()
	if depth >= d.opts.WarnDepth {
		ev = logger.Warn()
	}
	ev.Str("event", "dispatcher.enqueued").
		Int(log.FieldQueueDepth, depth).
		Str(log.FieldPath, job.Path).
		Msg("segment queued for analysis")
	return SegmentQueued
}

func (d *Dispatcher) startLegacy(job Job, logger zerolog.Logger) Disposition {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Skipped
	}
	if d.legacyRunning || d.busy || len(d.queue) > 0 || !d.runMu.TryLock() {
		d.mu.Unlock()
		logger.Warn().Str("event", "dispatcher.busy").Msg("analysis already running, whole-session job not started")
		return Busy
	}
	d.legacyRunning = true
	d.activePath = job.Path
	d.legacyWG.Add(1)
	ctx := d.jobCtx
	d.mu.Unlock()

	go func() {
		defer d.legacyWG.Done()
		defer func() {
			d.mu.Lock()
			d.legacyRunning = false
			d.activePath = ""
			d.mu.Unlock()
		}()
		defer d.runMu.Unlock()
		if waitAnnounced(ctx, job) {
			d.process(ctx, job)
		}
	}()
	return Started
}

// waitAnnounced blocks until job.Announced is closed or ctx ends and reports
// whether the job may run.
func waitAnnounced(ctx context.Context, job Job) bool {
	if job.Announced == nil {
		return true
	}
	select {
	case <-job.Announced:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) worker() {
	defer close(d.workerDone)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		job := d.queue[0]
		d.queue[0] = Job{}
		d.queue = d.queue[1:]
		d.busy = true
		d.activePath = job.Path
		depth := len(d.queue)
		ctx := d.jobCtx
		d.mu.Unlock()

		metrics.SetQueueDepth(depth)
		metrics.ObserveQueueWait(d.opts.Now().Sub(job.EnqueuedAt))
		if waitAnnounced(ctx, job) {
			d.runMu.Lock()
			d.process(ctx, job)
			d.runMu.Unlock()
		} else {
			logger := d.jobLogger(job)
			logger.Warn().Str("event", "dispatcher.job_abandoned").Msg("job cancelled before it was announced")
		}

		d.mu.Lock()
		d.busy = false
		d.activePath = ""
		d.mu.Unlock()
	}
}

// process runs one engine invocation and republishes everything it emits.
func (d *Dispatcher) process(ctx context.Context, job Job) {
	start := d.opts.Now()
	ctx = log.ContextWithJobID(log.ContextWithSessionID(ctx, job.SessionID), job.ID)
	ctx, span := d.opts.Tracer.Start(ctx, "dispatcher.job",
		trace.WithAttributes(telemetry.JobAttributes(job.ID, string(job.Mode), job.SessionID, job.SegmentIndex, job.Path)...))
	defer span.End()

	logger := log.WithContext(ctx, d.logger).With().
		Str(log.FieldMode, string(job.Mode)).
		Int(log.FieldSegmentIndex, job.SegmentIndex).
		Logger()

	tag := protocol.SegmentTag(job.SessionID, job.SegmentIndex)
	if job.Mode == ModeSession || job.SegmentIndex < 0 {
		tag = protocol.SessionTag(job.SessionID)
	}
	mode := string(job.Mode)

	logger.Info().Str("event", "dispatcher.job_started").Str(log.FieldPath, job.Path).Msg("analysis started")
	d.publish(protocol.NewSDKStarted(d.opts.Now(), tag, mode, job.Path))

	result := "ok"
	metricsCount := 0
	defer func() {
		span.SetAttributes(telemetry.JobCompletedAttributes(result, metricsCount, start.Sub(job.EnqueuedAt))...)
		metrics.ObserveJob(mode, result, d.opts.Now().Sub(start))
		d.mu.Lock()
		if result == "ok" {
			d.completed++
		} else {
			d.failed++
		}
		d.mu.Unlock()
	}()

	settings := d.opts.Settings
	settings.InputPath = job.Path
	eng, err := d.opts.Factory.New(settings)
	if err != nil {
		result = "init_failed"
		d.failJob(span, logger, tag, mode, "engine.new", fmt.Sprintf("SDK initialization failed: %v", err), err)
		return
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("event", "dispatcher.engine_close_failed").Msg("engine close failed")
		}
	}()

	if err := eng.Initialize(ctx); err != nil {
		result = "init_failed"
		d.failJob(span, logger, tag, mode, "engine.initialize", fmt.Sprintf("SDK initialization failed: %v", err), err)
		return
	}

	runCtx, runSpan := d.opts.Tracer.Start(ctx, "engine.run",
		trace.WithAttributes(telemetry.EngineAttributes(settings.Width, settings.Height)...))
	results := make(chan engine.Result)
	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(runCtx, results)
		close(results)
	}()

	for r := range results {
		metrics.IncEngineResult(r.Kind())
		now := d.opts.Now()
		switch v := r.(type) {
		case engine.CoreMetrics:
			metricsCount++
			d.publish(protocol.NewMetrics(now, tag, v))
			if metricsCount%10 == 0 {
				logger.Debug().Int("metrics_count", metricsCount).Msg("core metrics republished")
			}
		case engine.EdgeMetrics:
			d.publish(protocol.NewEdgeMetrics(now, tag, v))
		case engine.StatusChange:
			logger.Info().Str("event", "dispatcher.imaging_status").
				Int("status_code", v.Code).Str("status", v.Description).Msg("engine status changed")
			d.publish(protocol.NewImagingStatus(now, tag, v))
		}
	}
	err = <-runErr
	runSpan.End()

	if !engine.IsNormalCompletion(err) {
		result = "error"
		d.failJob(span, logger, tag, mode, "engine.run", fmt.Sprintf("SDK processing error: %v", err), err)
	}

	logger.Info().
		Str("event", "dispatcher.job_completed").
		Int("metrics_count", metricsCount).
		Dur("duration", d.opts.Now().Sub(start)).
		Msg("analysis completed")
	d.publish(protocol.NewSDKCompleted(d.opts.Now(), tag, mode, metricsCount))
}

func (d *Dispatcher) failJob(span trace.Span, logger zerolog.Logger, tag protocol.Tag, mode, stage, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	span.SetAttributes(telemetry.ErrorAttributes(stage)...)
	logger.Error().Err(err).Str("event", "dispatcher.job_failed").Str("stage", stage).Msg("analysis failed")
	d.publish(protocol.NewSDKError(d.opts.Now(), tag, mode, msg))
}

func (d *Dispatcher) publish(msg protocol.Message) {
	d.opts.Publisher.Publish(msg)
}

func (d *Dispatcher) jobLogger(job Job) zerolog.Logger {
	return d.logger.With().
		Str(log.FieldJobID, job.ID).
		Str(log.FieldSessionID, job.SessionID).
		Str(log.FieldMode, string(job.Mode)).
		Logger()
}

// WaitLegacy blocks until a running whole-session job finishes or ctx ends.
func (d *Dispatcher) WaitLegacy(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.legacyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancelRunning()
		<-done
		return ctx.Err()
	}
}

// Drain stops accepting jobs, lets the worker finish the in-flight and queued
// jobs, and returns once it exits. If ctx ends first the running engine is
// cancelled and the remaining queue is abandoned.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	started := d.started
	pending := len(d.queue)
	d.cond.Broadcast()
	d.mu.Unlock()

	if !started {
		return nil
	}
	d.logger.Info().Str("event", "dispatcher.draining").Int(log.FieldQueueDepth, pending).Msg("draining analysis queue")

	select {
	case <-d.workerDone:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		abandoned := len(d.queue)
		d.queue = nil
		d.mu.Unlock()
		metrics.SetQueueDepth(0)
		d.cancelRunning()
		<-d.workerDone
		d.logger.Warn().Str("event", "dispatcher.drain_timeout").Int("abandoned", abandoned).Msg("drain deadline reached, remaining jobs abandoned")
		return ctx.Err()
	}
}

func (d *Dispatcher) cancelRunning() {
	d.mu.Lock()
	cancel := d.cancelJobs
	d.mu.Unlock()
	cancel()
}

// Depth returns the number of queued jobs.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Pending reports whether path is queued or being analysed.
func (d *Dispatcher) Pending(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if path == "" {
		return false
	}
	if d.activePath == path {
		return true
	}
	for _, job := range d.queue {
		if job.Path == path {
			return true
		}
	}
	return false
}

// Busy reports whether any engine is running.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy || d.legacyRunning
}

// Stats returns a snapshot.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		QueueDepth:    len(d.queue),
		Busy:          d.busy,
		LegacyRunning: d.legacyRunning,
		Draining:      d.closed,
		Completed:     d.completed,
		Failed:        d.failed,
	}
}
