// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the operations HTTP surface: health checks, metrics, a status
// snapshot and the WebSocket result feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/api/middleware"
	"github.com/ManuGH/vitalsd/internal/dispatcher"
	"github.com/ManuGH/vitalsd/internal/health"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/recorder"
	"github.com/ManuGH/vitalsd/internal/version"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	serviceName       = "vitalsd-ops"
	readHeaderTimeout = 5 * time.Second
	rateWindow        = time.Minute
)

// RecorderStatus reports the recording state.
type RecorderStatus interface {
	Status() recorder.Status
}

// DispatcherStats reports the analysis queue state.
type DispatcherStats interface {
	Stats() dispatcher.Stats
}

// SubscriberCounter reports connected result subscribers.
type SubscriberCounter interface {
	Subscribers() int
}

// Deps are the components the ops surface reads from. Nil members are
// omitted from the status snapshot.
type Deps struct {
	Health      *health.Manager
	Recorder    RecorderStatus
	Dispatcher  DispatcherStats
	Subscribers SubscriberCounter
	// Subscribe serves the WebSocket result feed; nil disables the route.
	Subscribe http.Handler
}

// Options configure the ops server.
type Options struct {
	Addr      string
	RateLimit int // requests per minute per client IP
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version     string            `json:"version"`
	Recorder    *recorder.Status  `json:"recorder,omitempty"`
	Dispatcher  *dispatcher.Stats `json:"dispatcher,omitempty"`
	Subscribers int               `json:"subscribers"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Server is the ops HTTP server.
type Server struct {
	opts   Options
	deps   Deps
	router chi.Router
	logger zerolog.Logger

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

// NewServer builds the router. Call Start to listen.
func NewServer(opts Options, deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewManager(version.Version)
	}
	s := &Server{
		opts:   opts,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimit(s.opts.RateLimit, rateWindow))

	// The feed upgrades the connection; the instrumented group's response
	// wrappers do not implement http.Hijacker.
	if s.deps.Subscribe != nil {
		r.Handle("/api/v1/subscribe", s.deps.Subscribe)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logging())
		r.Use(middleware.Metrics())
		r.Use(middleware.Tracing(serviceName))

		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/api/v1/status", s.handleStatus)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := s.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "status.encode_error").
			Msg("failed to encode status response")
	}
}

// Snapshot collects the current status.
func (s *Server) Snapshot() StatusResponse {
	resp := StatusResponse{
		Version:   version.Version,
		Timestamp: time.Now().UTC(),
	}
	if s.deps.Recorder != nil {
		st := s.deps.Recorder.Status()
		resp.Recorder = &st
	}
	if s.deps.Dispatcher != nil {
		st := s.deps.Dispatcher.Stats()
		resp.Dispatcher = &st
	}
	if s.deps.Subscribers != nil {
		resp.Subscribers = s.deps.Subscribers.Subscribers()
	}
	return resp
}

// Start binds the listener and serves in the background. A bind failure is
// returned; serve errors after a successful bind are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("ops listen %s: %w", s.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.mu.Lock()
	s.srv = srv
	s.ln = ln
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info().
		Str("event", "api.listening").
		Str(log.FieldListenAddr, ln.Addr().String()).
		Msg("ops server listening")

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("event", "api.server.failed").Msg("ops server failed")
		}
	}()
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

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// ends. Hijacked WebSocket connections are closed by the broadcast server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	return err
}
