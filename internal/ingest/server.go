// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest serves the producer side of the daemon: one framed TCP
// connection at a time carrying control messages and encoded video frames.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/framing"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/media"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/ManuGH/vitalsd/internal/recorder"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

const acceptPollInterval = 500 * time.Millisecond

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("ingest server already started")

// Recorder is the session state machine the server drives.
type Recorder interface {
	StartSession(id string, h recorder.Hints) (recorder.SessionInfo, error)
	AddFrame(f media.Frame) error
	StopRecording() recorder.StopResult
	EndSession(expectedID string) (recorder.StopResult, error)
}

// Options configure a Server.
type Options struct {
	Addr string
	Now  func() time.Time
}

// Server accepts producer connections one at a time.
type Server struct {
	opts   Options
	rec    Recorder
	logger zerolog.Logger

	frameLog *rate.Limiter

	mu       sync.Mutex
	ln       net.Listener
	tcp      *net.TCPListener
	active   net.Conn
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a Server bound to rec.
func NewServer(opts Options, rec Recorder) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:     opts,
		rec:      rec,
		logger:   log.WithComponent("ingest"),
		frameLog: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

// Start binds the listener and launches the accept loop. Bind errors are
// fatal at startup.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyStarted
	}
	raw, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("ingest listen %s: %w", s.opts.Addr, err)
	}
	s.tcp, _ = raw.(*net.TCPListener)
	// Further producers wait in the kernel backlog until the slot frees.
	s.ln = netutil.LimitListener(raw, 1)

	s.logger.Info().
		Str("event", "ingest.listening").
		Str(log.FieldListenAddr, raw.Addr().String()).
		Msg("ingestion server listening")

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		if s.tcp != nil {
			_ = s.tcp.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isStopped() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Str("event", "ingest.accept_failed").Msg("accept failed")
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.active = conn
		s.wg.Add(1)
		s.mu.Unlock()

		metrics.IncIngestConnection()
		go s.serve(conn)
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// serve runs one producer connection to completion. Losing the connection
// stops the active session exactly like session_end.
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	remote := conn.RemoteAddr().String()
	logger := s.logger.With().Str(log.FieldRemoteAddr, remote).Logger()
	logger.Info().Str("event", "ingest.connected").Msg("producer connected")

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		if s.active == conn {
			s.active = nil
		}
		s.mu.Unlock()
	}()

	r := framing.NewReader(conn)
	w := framing.NewWriter(conn)
	var frames, dropped int
	for {
		payload, err := r.Read()
		if err != nil {
			s.logDisconnect(logger, err)
			break
		}
		metrics.AddIngestBytes(len(payload) + framing.HeaderSize)

		if protocol.IsControl(payload) {
			s.handleControl(logger, w, payload)
			continue
		}
		if s.handleFrame(logger, payload) {
			frames++
		} else {
			dropped++
		}
	}

	if res := s.rec.StopRecording(); res.SessionID != "" {
		logger.Info().
			Str("event", "ingest.session_stopped_on_disconnect").
			Str(log.FieldSessionID, res.SessionID).
			Int(log.FieldFrameCount, res.FrameCount).
			Int("segment_count", res.SegmentCount).
			Str("sdk_processing", disposition(res.Disposition)).
			Msg("connection lost, session stopped")
	}
	logger.Info().
		Str("event", "ingest.disconnected").
		Int("frames_accepted", frames).
		Int("frames_dropped", dropped).
		Msg("producer disconnected")
}

func (s *Server) logDisconnect(logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		return
	case errors.Is(err, framing.ErrPayloadTooLarge):
		logger.Warn().Err(err).Str("event", "ingest.payload_too_large").Msg("protocol violation, closing connection")
	case errors.Is(err, io.ErrUnexpectedEOF):
		logger.Warn().Err(err).Str("event", "ingest.truncated_read").Msg("connection closed mid-message")
	case errors.Is(err, net.ErrClosed):
		logger.Debug().Str("event", "ingest.closed").Msg("connection closed by server")
	default:
		logger.Warn().Err(err).Str("event", "ingest.read_failed").Msg("read failed")
	}
}

// handleFrame decodes and records one frame. It reports whether the frame
// was accepted.
func (s *Server) handleFrame(logger zerolog.Logger, payload []byte) bool {
	frame, err := media.DecodeFrame(payload)
	if err != nil {
		metrics.IncFrame("decode_failed")
		if s.frameLog.Allow() {
			logger.Warn().Err(err).Str("event", "ingest.frame_decode_failed").
				Int(log.FieldFrameBytes, len(payload)).Msg("frame skipped")
		}
		return false
	}

	err = s.rec.AddFrame(frame)
	switch {
	case err == nil:
		metrics.IncFrame("ok")
		return true
	case errors.Is(err, recorder.ErrNotRecording):
		metrics.IncFrame("not_recording")
		if s.frameLog.Allow() {
			logger.Debug().Str("event", "ingest.frame_without_session").Msg("frame received while idle, dropped")
		}
	case errors.Is(err, recorder.ErrEmptyFrame):
		metrics.IncFrame("empty")
	default:
		metrics.IncFrame("write_failed")
		if s.frameLog.Allow() {
			logger.Error().Err(err).Str("event", "ingest.frame_write_failed").Msg("frame could not be recorded")
		}
	}
	return false
}

func (s *Server) handleControl(logger zerolog.Logger, w *framing.Writer, payload []byte) {
	now := s.opts.Now()
	req, err := protocol.ParseControl(payload)
	if err != nil {
		metrics.IncControl(req.Type, false)
		logger.Warn().Err(err).Str("event", "ingest.control_rejected").Msg("invalid control message")
		s.reply(logger, w, protocol.NewControlError(now, errorText(err)))
		return
	}

	var (
		reply protocol.Message
		cerr  error
	)
	switch req.Type {
	case protocol.TypeSessionStart:
		reply, cerr = s.startSession(req)
	case protocol.TypeSessionEnd:
		reply, cerr = s.endSession(req)
	}
	metrics.IncControl(req.Type, cerr == nil)
	if cerr != nil {
		logger.Warn().Err(cerr).
			Str("event", "ingest.control_failed").
			Str("type", req.Type).
			Str(log.FieldSessionID, req.SessionID).
			Msg("control message failed")
		reply = protocol.NewControlError(now, errorText(cerr))
	}
	s.reply(logger, w, reply)
}

var errInvalidHints = errors.New("invalid session parameters")

func (s *Server) startSession(req protocol.ControlRequest) (protocol.Message, error) {
	if req.FPS < 0 || req.Width < 0 || req.Height < 0 {
		return nil, fmt.Errorf("%w: fps, width and height must be positive", errInvalidHints)
	}
	if req.Width > media.MaxDimension || req.Height > media.MaxDimension {
		return nil, fmt.Errorf("%w: width and height must not exceed %d", errInvalidHints, media.MaxDimension)
	}
	info, err := s.rec.StartSession(req.SessionID, recorder.Hints{FPS: req.FPS, Width: req.Width, Height: req.Height})
	if err != nil {
		return nil, err
	}
	return protocol.NewSessionStarted(s.opts.Now(), info.ID, info.Path, info.FPS, info.FramesPerSegment), nil
}

func (s *Server) endSession(req protocol.ControlRequest) (protocol.Message, error) {
	res, err := s.rec.EndSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	return protocol.NewSessionEnded(s.opts.Now(), res.SessionID, res.LastSegment,
		res.FrameCount, res.SegmentCount, disposition(res.Disposition)), nil
}

func (s *Server) reply(logger zerolog.Logger, w *framing.Writer, msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Str("event", "ingest.reply_encode_failed").Msg("reply encode failed")
		return
	}
	if err := w.Write(data); err != nil {
		logger.Warn().Err(err).Str("event", "ingest.reply_failed").Str("type", msg.MessageType()).Msg("reply could not be sent")
	}
}

// disposition maps an empty final-segment disposition (no frames) to skipped.
func disposition(d string) string {
	if d == "" {
		return "skipped"
	}
	return d
}

// errorText renders an error for a control_response message.
func errorText(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// Stop closes the listener and the active connection, then waits for the
// handler to finish stopping its session.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		ln := s.ln
		active := s.active
		s.mu.Unlock()

		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		if active != nil {
			_ = active.Close()
		}
		s.wg.Wait()
		s.logger.Info().Str("event", "ingest.stopped").Msg("ingestion server stopped")
	})
	return err
}

// Active reports whether a producer is connected.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
