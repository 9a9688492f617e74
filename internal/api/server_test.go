// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/vitalsd/internal/broadcast"
	"github.com/ManuGH/vitalsd/internal/dispatcher"
	"github.com/ManuGH/vitalsd/internal/health"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/ManuGH/vitalsd/internal/recorder"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecorder struct{ st recorder.Status }

func (s stubRecorder) Status() recorder.Status { return s.st }

type stubDispatcher struct{ st dispatcher.Stats }

func (s stubDispatcher) Stats() dispatcher.Stats { return s.st }

type stubSubs int

func (s stubSubs) Subscribers() int { return int(s) }

type failingChecker struct{}

func (failingChecker) Name() string { return "engine" }
func (failingChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Status: health.StatusUnhealthy, Error: "engine binary missing"}
}

func TestStatusSnapshot(t *testing.T) {
	s := NewServer(Options{}, Deps{
		Recorder:    stubRecorder{recorder.Status{Recording: true, SessionID: "abc", FrameCount: 42}},
		Dispatcher:  stubDispatcher{dispatcher.Stats{QueueDepth: 3, Busy: true}},
		Subscribers: stubSubs(2),
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var got StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Recorder)
	require.NotNil(t, got.Dispatcher)
	assert.True(t, got.Recorder.Recording)
	assert.Equal(t, "abc", got.Recorder.SessionID)
	assert.Equal(t, 42, got.Recorder.FrameCount)
	assert.Equal(t, 3, got.Dispatcher.QueueDepth)
	assert.Equal(t, 2, got.Subscribers)
}

func TestStatusOmitsMissingDeps(t *testing.T) {
	s := NewServer(Options{}, Deps{})
	snap := s.Snapshot()
	assert.Nil(t, snap.Recorder)
	assert.Nil(t, snap.Dispatcher)
	assert.Zero(t, snap.Subscribers)
}

func TestHealthEndpoints(t *testing.T) {
	hm := health.NewManager("test")
	hm.RegisterChecker(failingChecker{})
	s := NewServer(Options{}, Deps{Health: hm})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine binary missing")
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(Options{}, Deps{})

	// Prime the request histogram.
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vitalsd_http_request_duration_seconds_count{method="GET",path="/api/v1/status",status="200"}`)
}

func TestRateLimit(t *testing.T) {
	s := NewServer(Options{RateLimit: 2}, Deps{})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		s.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSubscribeRoute(t *testing.T) {
	b := broadcast.NewServer(broadcast.Options{Addr: "127.0.0.1:0"})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })

	s := NewServer(Options{}, Deps{Subscribe: b.WebSocketHandler(), Subscribers: b})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	b.Publish(protocol.NewStatus(time.Now(), protocol.StatusReady, "vitalsd ready"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ready"`)
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(Options{Addr: "127.0.0.1:0"}, Deps{})
	assert.Nil(t, s.Addr())
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestStartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(Options{Addr: ln.Addr().String()}, Deps{})
	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ops listen")
	assert.NoError(t, s.Shutdown(context.Background()))
}
