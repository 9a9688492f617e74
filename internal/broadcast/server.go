// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package broadcast fans newline-delimited JSON out to every connected
// subscriber. Delivery is best effort: a subscriber whose write fails is
// dropped after the pass and never retried.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/metrics"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	// DefaultWriteTimeout bounds a single subscriber write.
	DefaultWriteTimeout = 2 * time.Second
	acceptPollInterval  = 500 * time.Millisecond
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("broadcast server already started")

// Mirror receives a copy of every broadcast line.
type Mirror interface {
	Mirror(line []byte)
}

// Options configure a Server.
type Options struct {
	Addr         string
	WriteTimeout time.Duration
	Mirror       Mirror
}

// Server owns the subscriber set and the TCP accept loop.
type Server struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	subs    map[string]Subscriber
	stopped bool

	ln       net.Listener
	stopOnce sync.Once
	stopping chan struct{}
	wg       sync.WaitGroup
	readers  sync.WaitGroup
}

// NewServer creates a Server. Start binds the TCP listener.
func NewServer(opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		opts:     opts,
		logger:   log.WithComponent("broadcast"),
		subs:     make(map[string]Subscriber),
		stopping: make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop. Bind errors are
// returned to the caller and are fatal at startup.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("broadcast listen %s: %w", s.opts.Addr, err)
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info().
		Str("event", "broadcast.listening").
		Str(log.FieldListenAddr, ln.Addr().String()).
		Msg("broadcast server listening")

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
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

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	tcp, _ := ln.(*net.TCPListener)
	for {
		if tcp != nil {
			_ = tcp.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if s.done(ctx) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Str("event", "broadcast.accept_failed").Msg("accept failed")
			continue
		}
		s.Add(newTCPSubscriber(conn, s.opts.WriteTimeout))
	}
}

func (s *Server) done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// Add registers a subscriber and reports whether it was accepted.
// Subscribers added after Stop are closed immediately.
func (s *Server) Add(sub Subscriber) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = sub.Close()
		return false
	}
	s.subs[sub.ID()] = sub
	n := len(s.subs)
	s.mu.Unlock()

	metrics.SubscriberAdded(sub.Transport())
	s.logger.Info().
		Str("event", "broadcast.subscriber_added").
		Str(log.FieldSubscriberID, sub.ID()).
		Str(log.FieldTransport, sub.Transport()).
		Str(log.FieldRemoteAddr, sub.RemoteAddr()).
		Int("subscribers", n).
		Msg("subscriber connected")
	return true
}

// Remove unregisters and closes a subscriber. Unknown ids are ignored.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = sub.Close()
	metrics.SubscriberRemoved(sub.Transport())
	s.logger.Info().
		Str("event", "broadcast.subscriber_removed").
		Str(log.FieldSubscriberID, id).
		Str(log.FieldTransport, sub.Transport()).
		Msg("subscriber disconnected")
}

// Publish encodes msg as one JSON line and broadcasts it.
func (s *Server) Publish(msg protocol.Message) {
	line, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("event", "broadcast.encode_failed").Str("type", msg.MessageType()).Msg("message encode failed")
		return
	}
	metrics.IncBroadcast(msg.MessageType())
	s.Broadcast(line)
}

// Broadcast appends a newline to payload and writes it to every subscriber in
// one pass. Subscribers whose write fails are removed after the pass.
func (s *Server) Broadcast(payload []byte) {
	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')

	var failed []Subscriber
	s.mu.Lock()
	for id, sub := range s.subs {
		if err := sub.Send(line); err != nil {
			s.logger.Debug().Err(err).
				Str("event", "broadcast.send_failed").
				Str(log.FieldSubscriberID, id).
				Msg("subscriber write failed")
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		delete(s.subs, sub.ID())
	}
	s.mu.Unlock()

	for _, sub := range failed {
		_ = sub.Close()
		metrics.SubscriberRemoved(sub.Transport())
		metrics.IncPruned(sub.Transport())
		s.logger.Info().
			Str("event", "broadcast.subscriber_pruned").
			Str(log.FieldSubscriberID, sub.ID()).
			Str(log.FieldTransport, sub.Transport()).
			Msg("subscriber dropped after failed write")
	}

	if s.opts.Mirror != nil {
		s.opts.Mirror.Mirror(line)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Stop closes the listener, waits for the accept loop and closes every
// subscriber. It is safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopping)

		s.mu.Lock()
		s.stopped = true
		ln := s.ln
		subs := s.subs
		s.subs = make(map[string]Subscriber)
		s.mu.Unlock()

		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		s.wg.Wait()

		for _, sub := range subs {
			_ = sub.Close()
			metrics.SubscriberRemoved(sub.Transport())
		}
		s.readers.Wait()
		s.logger.Info().Str("event", "broadcast.stopped").Int("closed_subscribers", len(subs)).Msg("broadcast server stopped")
	})
	return err
}
