// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recorder turns an unbounded stream of frames into fixed-length
// segment files. One session records at a time; every finalized segment is
// handed to a callback exactly once.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/media"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/rs/zerolog"
)

// Finalization reasons.
const (
	ReasonRollover = "rollover"
	ReasonStop     = "stop"
	ReasonEmpty    = "empty"
)

// Options configure a Recorder.
type Options struct {
	// Dir receives segment files and manifests.
	Dir string
	// DefaultFPS applies when a session does not supply one.
	DefaultFPS int
	// SegmentSeconds is the segment length. Zero records each session as a
	// single segment that is finalized on stop.
	SegmentSeconds int
	// JPEGQuality is used when frames are re-encoded.
	JPEGQuality int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Hints are optional session parameters; zero means unknown.
type Hints struct {
	FPS    int
	Width  int
	Height int
}

// Segment is a finalized slice of a session, passed by value.
type Segment struct {
	SessionID   string
	Index       int
	Path        string
	Frames      int
	Final       bool
	FPS         int
	Width       int
	Height      int
	StartedAt   time.Time
	FinalizedAt time.Time
}

// SegmentReadyFunc receives every finalized segment while the recorder lock
// is held. It must only enqueue work and return the dispatch disposition.
type SegmentReadyFunc func(Segment) string

// SessionInfo describes a newly started session.
type SessionInfo struct {
	ID               string
	Path             string // path of segment 0
	FPS              int
	FramesPerSegment int // 0 when the session is a single segment
	Width            int
	Height           int
	StartedAt        time.Time
}

// StopResult summarises a stopped session. The zero value means no session
// was active.
type StopResult struct {
	SessionID    string
	LastSegment  string
	FrameCount   int
	SegmentCount int
	// Disposition of the final in-flight segment; empty when it had no frames.
	Disposition string
}

// Status is a point-in-time snapshot for observability.
type Status struct {
	Recording        bool      `json:"recording"`
	SessionID        string    `json:"session_id,omitempty"`
	FrameCount       int       `json:"frame_count"`
	SegmentIndex     int       `json:"segment_index"`
	SegmentFrames    int       `json:"segment_frames"`
	SegmentCount     int       `json:"segment_count"`
	FPS              int       `json:"fps,omitempty"`
	FramesPerSegment int       `json:"frames_per_segment,omitempty"`
	Width            int       `json:"width,omitempty"`
	Height           int       `json:"height,omitempty"`
	StartedAt        time.Time `json:"started_at,omitempty"`
}

type session struct {
	id               string
	fps              int
	framesPerSegment int
	width            int
	height           int
	startedAt        time.Time

	segIndex  int
	segFrames int
	segPath   string
	segStart  time.Time
	writer    *media.AVIWriter

	totalFrames  int
	segmentCount int
	lastSegment  string
	manifest     Manifest
}

// Recorder is the session state machine. All methods are safe for concurrent use.
type Recorder struct {
	opts    Options
	onReady SegmentReadyFunc
	logger  zerolog.Logger

	mu   sync.Mutex
	sess *session // nil while idle
}

// New returns an idle Recorder. onReady may be nil.
func New(opts Options, onReady SegmentReadyFunc) *Recorder {
	if opts.DefaultFPS <= 0 {
		opts.DefaultFPS = 30
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = media.DefaultJPEGQuality
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if onReady == nil {
		onReady = func(Segment) string { return "" }
	}
	return &Recorder{
		opts:    opts,
		onReady: onReady,
		logger:  log.WithComponent("recorder"),
	}
}

// Dir returns the recordings directory.
func (r *Recorder) Dir() string { return r.opts.Dir }

// StartSession opens a new session. It fails with ErrSessionActive, leaving
// the running session untouched, if one is already recording.
func (r *Recorder) StartSession(id string, h Hints) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionActive, r.sess.id)
	}
	if h.Width > media.MaxDimension || h.Height > media.MaxDimension {
		return SessionInfo{}, fmt.Errorf("%w: %dx%d exceeds %d", ErrBadHints, h.Width, h.Height, media.MaxDimension)
	}

	now := r.opts.Now()
	if id == "" {
		id = GenerateSessionID(now)
	}
	fps := h.FPS
	if fps <= 0 {
		fps = r.opts.DefaultFPS
	}

	s := &session{
		id:               id,
		fps:              fps,
		framesPerSegment: fps * r.opts.SegmentSeconds,
		startedAt:        now,
		segStart:         now,
		segPath:          segmentPath(r.opts.Dir, id, 0, now),
	}
	if h.Width > 0 && h.Height > 0 {
		s.width, s.height = h.Width, h.Height
	}

	if err := os.MkdirAll(r.opts.Dir, 0o750); err != nil {
		r.logger.Warn().Err(err).Str(log.FieldRecordingDir, r.opts.Dir).
			Str("event", "recorder.mkdir_failed").Msg("could not create recordings directory")
	}
	if s.width > 0 {
		if err := r.openSegment(s); err != nil {
			return SessionInfo{}, err
		}
	}
	s.manifest = Manifest{
		SessionID:        id,
		StartedAt:        now,
		FPS:              fps,
		Width:            s.width,
		Height:           s.height,
		FramesPerSegment: s.framesPerSegment,
		Segments:         []ManifestEntry{},
	}

	r.sess = s
	metrics.SetSessionActive(true)
	r.logger.Info().
		Str("event", "recorder.session_started").
		Str(log.FieldSessionID, id).
		Int(log.FieldFPS, fps).
		Int("frames_per_segment", s.framesPerSegment).
		Str(log.FieldPath, s.segPath).
		Msg("recording session started")

	return SessionInfo{
		ID:               id,
		Path:             s.segPath,
		FPS:              fps,
		FramesPerSegment: s.framesPerSegment,
		Width:            s.width,
		Height:           s.height,
		StartedAt:        now,
	}, nil
}

// AddFrame appends a frame to the active session, rolling over to a new
// segment when the current one is full.
func (r *Recorder) AddFrame(f media.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sess
	if s == nil {
		return ErrNotRecording
	}
	if f.Empty() {
		r.logger.Warn().Str("event", "recorder.empty_frame").Str(log.FieldSessionID, s.id).Msg("rejecting empty frame")
		return ErrEmptyFrame
	}
	if s.width == 0 {
		s.width, s.height = f.Width(), f.Height()
		s.manifest.Width, s.manifest.Height = s.width, s.height
		r.logger.Info().
			Str("event", "recorder.geometry_detected").
			Str(log.FieldSessionID, s.id).
			Str(log.FieldResolution, fmt.Sprintf("%dx%d", s.width, s.height)).
			Msg("session geometry taken from first frame")
	}

	data, resized, err := media.Normalize(f, s.width, s.height, r.opts.JPEGQuality)
	if err != nil {
		return err
	}
	if resized {
		metrics.IncFrameResized()
	}

	if s.writer == nil {
		if err := r.openSegment(s); err != nil {
			return err
		}
	}
	if err := s.writer.WriteFrame(data); err != nil {
		return fmt.Errorf("write frame to %s: %w", s.segPath, err)
	}
	s.segFrames++
	s.totalFrames++

	if s.framesPerSegment > 0 && s.segFrames >= s.framesPerSegment {
		r.finalizeSegment(s, false, ReasonRollover)
		s.segIndex++
		s.segFrames = 0
		s.segStart = r.opts.Now()
		s.segPath = segmentPath(r.opts.Dir, s.id, s.segIndex, s.segStart)
		if err := r.openSegment(s); err != nil {
			// Retried on the next frame.
			r.logger.Warn().Err(err).Str("event", "recorder.open_failed").
				Str(log.FieldSessionID, s.id).Int(log.FieldSegmentIndex, s.segIndex).
				Msg("could not open next segment")
		}
	}
	return nil
}

// StopRecording finalizes the in-flight segment and returns to idle. A second
// call returns the zero StopResult.
func (r *Recorder) StopRecording() StopResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked("disconnect")
}

// EndSession stops the session named expectedID. An empty expectedID matches
// any active session.
func (r *Recorder) EndSession(expectedID string) (StopResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess == nil {
		return StopResult{}, ErrNoSession
	}
	if expectedID != "" && expectedID != r.sess.id {
		return StopResult{}, fmt.Errorf("%w: expected %s", ErrSessionMismatch, r.sess.id)
	}
	return r.stopLocked("explicit"), nil
}

func (r *Recorder) stopLocked(reason string) StopResult {
	s := r.sess
	if s == nil {
		return StopResult{}
	}
	disposition := r.finalizeSegment(s, true, ReasonStop)

	ended := r.opts.Now()
	s.manifest.EndedAt = &ended
	s.manifest.TotalFrames = s.totalFrames
	r.persistManifest(s)

	res := StopResult{
		SessionID:    s.id,
		LastSegment:  s.lastSegment,
		FrameCount:   s.totalFrames,
		SegmentCount: s.segmentCount,
		Disposition:  disposition,
	}
	r.sess = nil
	metrics.SetSessionActive(false)
	metrics.IncSessionEnded(reason)

	r.logger.Info().
		Str("event", "recorder.session_stopped").
		Str(log.FieldSessionID, s.id).
		Str("reason", reason).
		Int(log.FieldFrameCount, s.totalFrames).
		Int("segment_count", s.segmentCount).
		Dur("duration", ended.Sub(s.startedAt)).
		Msg("recording session stopped")
	return res
}

func (r *Recorder) openSegment(s *session) error {
	w, err := media.CreateAVI(s.segPath, s.width, s.height, s.fps)
	if err != nil {
		return err
	}
	s.writer = w
	return nil
}

// finalizeSegment closes the current segment. Non-empty segments are
// announced; empty ones are deleted. Returns the callback disposition.
func (r *Recorder) finalizeSegment(s *session, final bool, reason string) string {
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			r.logger.Error().Err(err).Str("event", "recorder.close_failed").
				Str(log.FieldPath, s.segPath).Msg("closing segment failed")
		}
		s.writer = nil
	}

	if s.segFrames == 0 {
		if err := os.Remove(s.segPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Err(err).Str(log.FieldPath, s.segPath).Msg("could not remove empty segment")
		}
		metrics.ObserveSegmentFinalized(ReasonEmpty, 0)
		return ""
	}

	seg := Segment{
		SessionID:   s.id,
		Index:       s.segIndex,
		Path:        s.segPath,
		Frames:      s.segFrames,
		Final:       final,
		FPS:         s.fps,
		Width:       s.width,
		Height:      s.height,
		StartedAt:   s.segStart,
		FinalizedAt: r.opts.Now(),
	}
	s.segmentCount++
	s.lastSegment = s.segPath
	metrics.ObserveSegmentFinalized(reason, s.segFrames)

	disposition := r.onReady(seg)

	s.manifest.TotalFrames = s.totalFrames
	s.manifest.Segments = append(s.manifest.Segments, ManifestEntry{
		Index:         seg.Index,
		Path:          seg.Path,
		Frames:        seg.Frames,
		Final:         seg.Final,
		StartedAt:     seg.StartedAt,
		FinalizedAt:   seg.FinalizedAt,
		SDKProcessing: disposition,
	})
	if !final {
		r.persistManifest(s)
	}

	r.logger.Info().
		Str("event", "recorder.segment_finalized").
		Str(log.FieldSessionID, s.id).
		Int(log.FieldSegmentIndex, seg.Index).
		Int(log.FieldFrameCount, seg.Frames).
		Bool("final", final).
		Str("sdk_processing", disposition).
		Str(log.FieldPath, seg.Path).
		Msg("segment finalized")
	return disposition
}

func (r *Recorder) persistManifest(s *session) {
	if err := writeManifest(manifestPath(r.opts.Dir, s.id), &s.manifest); err != nil {
		r.logger.Warn().Err(err).Str("event", "recorder.manifest_failed").
			Str(log.FieldSessionID, s.id).Msg("could not write session manifest")
	}
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sess
	if s == nil {
		return Status{}
	}
	return Status{
		Recording:        true,
		SessionID:        s.id,
		FrameCount:       s.totalFrames,
		SegmentIndex:     s.segIndex,
		SegmentFrames:    s.segFrames,
		SegmentCount:     s.segmentCount,
		FPS:              s.fps,
		FramesPerSegment: s.framesPerSegment,
		Width:            s.width,
		Height:           s.height,
		StartedAt:        s.startedAt,
	}
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}

// SessionID returns the active session id, or "".
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return ""
	}
	return r.sess.id
}
