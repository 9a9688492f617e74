// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vitalsd/internal/engine"
	"github.com/ManuGH/vitalsd/internal/engine/enginetest"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type capture struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (c *capture) Publish(m protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *capture) all() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.msgs...)
}

func (c *capture) sdkStatuses() []protocol.SDKStatus {
	var out []protocol.SDKStatus
	for _, m := range c.all() {
		if s, ok := m.(protocol.SDKStatus); ok {
			out = append(out, s)
		}
	}
	return out
}

func newTestDispatcher(t *testing.T, f *enginetest.Factory) (*Dispatcher, *capture) {
	t.Helper()
	pub := &capture{}
	d := New(Options{
		Factory:   f,
		Publisher: pub,
		Settings:  engine.Settings{Width: 1280, Height: 720, Headless: true},
	})
	d.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.WaitLegacy(ctx)
		_ = d.Drain(ctx)
	})
	return d, pub
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))
}

func TestFIFOWithDifferingDurations(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/a", enginetest.Script{Delay: 80 * time.Millisecond})
	f.Set("/b", enginetest.Script{Delay: 5 * time.Millisecond})
	f.Set("/c", enginetest.Script{Delay: 40 * time.Millisecond})
	d, _ := newTestDispatcher(t, f)

	for i, p := range []string{"/a", "/b", "/c"} {
		require.Equal(t, SegmentQueued, d.QueueSegment(p, "s", i))
	}
	drain(t, d)

	calls := f.Calls()
	require.Len(t, calls, 3)
	require.Equal(t, "/a", calls[0].Settings.InputPath)
	require.Equal(t, "/b", calls[1].Settings.InputPath)
	require.Equal(t, "/c", calls[2].Settings.InputPath)
	for i := 1; i < len(calls); i++ {
		require.False(t, calls[i].Start.Before(calls[i-1].End), "job %d overlapped its predecessor", i)
	}
	require.Equal(t, 1, f.MaxConcurrent())
	require.Equal(t, 3, f.Closed(), "engine torn down after every job")
	require.Equal(t, 1280, calls[0].Settings.Width)
}

func TestResultsRepublishedWithTags(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/seg", enginetest.Script{Results: []engine.Result{
		engine.StatusChange{Code: 1, Description: "face found"},
		engine.EdgeMetrics{Talking: true},
		engine.CoreMetrics{PulseRate: 70},
		engine.CoreMetrics{PulseRate: 71},
	}})
	d, pub := newTestDispatcher(t, f)

	require.Equal(t, SegmentQueued, d.QueueSegment("/seg", "sess", 4))
	drain(t, d)

	msgs := pub.all()
	require.Len(t, msgs, 6)

	started, ok := msgs[0].(protocol.SDKStatus)
	require.True(t, ok)
	require.Equal(t, protocol.SDKProcessingStarted, started.Status)
	require.Equal(t, "/seg", started.VideoPath)

	img, ok := msgs[1].(protocol.ImagingStatus)
	require.True(t, ok)
	require.Equal(t, 1, img.Code)

	edge, ok := msgs[2].(protocol.EdgeMetrics)
	require.True(t, ok)
	require.True(t, edge.Realtime)
	require.Equal(t, "sess", edge.SessionID)
	require.Equal(t, 4, *edge.SegmentIndex)

	core, ok := msgs[3].(protocol.Metrics)
	require.True(t, ok)
	require.Equal(t, 70.0, core.PulseRate)
	require.Equal(t, protocol.MetricsSource, core.Source)

	done, ok := msgs[5].(protocol.SDKStatus)
	require.True(t, ok)
	require.Equal(t, protocol.SDKProcessingCompleted, done.Status)
	require.Equal(t, 2, *done.MetricsCount)
	require.Equal(t, uint64(1), d.Stats().Completed)
}

func TestInitFailureSkipsOnlyThatJob(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/bad", enginetest.Script{InitErr: errors.New("license invalid")})
	f.Set("/good", enginetest.Script{Results: []engine.Result{engine.CoreMetrics{}}})
	d, pub := newTestDispatcher(t, f)

	d.QueueSegment("/bad", "s", 0)
	d.QueueSegment("/good", "s", 1)
	drain(t, d)

	statuses := pub.sdkStatuses()
	require.Len(t, statuses, 4)
	require.Equal(t, protocol.SDKProcessingStarted, statuses[0].Status)
	require.Equal(t, protocol.SDKError, statuses[1].Status)
	require.Contains(t, statuses[1].Error, "SDK initialization failed: license invalid")
	require.Equal(t, protocol.SDKProcessingStarted, statuses[2].Status)
	require.Equal(t, protocol.SDKProcessingCompleted, statuses[3].Status)
	require.Equal(t, 1, *statuses[3].MetricsCount)

	st := d.Stats()
	require.Equal(t, uint64(1), st.Completed)
	require.Equal(t, uint64(1), st.Failed)
}

func TestRunErrorIsReportedAndWorkerContinues(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/crash", enginetest.Script{RunErr: errors.New("segfault")})
	d, pub := newTestDispatcher(t, f)

	d.QueueSegment("/crash", "s", 0)
	d.QueueSegment("/next", "s", 1)
	drain(t, d)

	statuses := pub.sdkStatuses()
	require.Len(t, statuses, 5)
	require.Equal(t, protocol.SDKError, statuses[1].Status)
	require.Contains(t, statuses[1].Error, "SDK processing error: segfault")
	require.Equal(t, protocol.SDKProcessingCompleted, statuses[2].Status)
	require.Equal(t, protocol.SDKProcessingCompleted, statuses[4].Status)
	require.Len(t, f.Calls(), 2)
}

func TestNilRunErrorIsNormalCompletion(t *testing.T) {
	f := enginetest.NewFactory()
	f.Default = enginetest.Script{}
	d, pub := newTestDispatcher(t, f)
	d.QueueSegment("/x", "s", 0)
	drain(t, d)
	for _, s := range pub.sdkStatuses() {
		require.NotEqual(t, protocol.SDKError, s.Status)
	}
}

func TestUnavailableEngine(t *testing.T) {
	f := enginetest.NewFactory()
	f.Down = true
	d, pub := newTestDispatcher(t, f)

	require.Equal(t, Unavailable, d.QueueSegment("/x", "s", 0))
	require.Equal(t, Unavailable, d.ProcessVideoAsync("/x", "s"))
	drain(t, d)
	require.Empty(t, pub.all())
}

func TestEmptyPathSkipped(t *testing.T) {
	d, _ := newTestDispatcher(t, enginetest.NewFactory())
	require.Equal(t, Skipped, d.QueueSegment("", "s", 0))
}

func TestProcessVideoAsyncReportsBusy(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/whole", enginetest.Script{Delay: 150 * time.Millisecond})
	d, pub := newTestDispatcher(t, f)

	require.Equal(t, Started, d.ProcessVideoAsync("/whole", "s1"))
	require.True(t, d.Busy())
	require.Equal(t, Busy, d.ProcessVideoAsync("/other", "s2"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.WaitLegacy(ctx))
	require.False(t, d.Busy())
	require.Len(t, f.Calls(), 1)

	statuses := pub.sdkStatuses()
	require.NotEmpty(t, statuses)
	require.Nil(t, statuses[0].SegmentIndex, "whole-session jobs carry no segment index")
	require.Equal(t, string(ModeSession), statuses[0].Mode)

	require.Equal(t, Started, d.ProcessVideoAsync("/whole", "s3"))
}

func TestSegmentWaitsForLegacyRun(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/whole", enginetest.Script{Delay: 80 * time.Millisecond})
	d, _ := newTestDispatcher(t, f)

	require.Equal(t, Started, d.ProcessVideoAsync("/whole", "s"))
	require.Equal(t, SegmentQueued, d.QueueSegment("/seg", "s", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.WaitLegacy(ctx))
	drain(t, d)
	require.Equal(t, 1, f.MaxConcurrent())
	require.Len(t, f.Calls(), 2)
}

func TestDrainFinishesQueueAndRejectsNewWork(t *testing.T) {
	f := enginetest.NewFactory()
	f.Default = enginetest.Script{Delay: 10 * time.Millisecond}
	d, _ := newTestDispatcher(t, f)

	for i := 0; i < 5; i++ {
		d.QueueSegment("/seg", "s", i)
	}
	drain(t, d)
	require.Len(t, f.Calls(), 5)
	require.Zero(t, d.Depth())
	require.Equal(t, Skipped, d.QueueSegment("/late", "s", 5))
	require.Equal(t, Skipped, d.ProcessVideoAsync("/late", "s"))
	require.True(t, d.Stats().Draining)
}

func TestDrainDeadlineCancelsRunningJob(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/stuck", enginetest.Script{BlockRun: true})
	d, pub := newTestDispatcher(t, f)

	d.QueueSegment("/stuck", "s", 0)
	d.QueueSegment("/never", "s", 1)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)
	require.Len(t, f.Calls(), 1)

	statuses := pub.sdkStatuses()
	require.Equal(t, protocol.SDKError, statuses[1].Status)
}

func TestPendingTracksQueuedAndRunningJobs(t *testing.T) {
	f := enginetest.NewFactory()
	f.Set("/first", enginetest.Script{Delay: 100 * time.Millisecond})
	d, _ := newTestDispatcher(t, f)

	d.QueueSegment("/first", "s", 0)
	d.QueueSegment("/second", "s", 1)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, d.Pending("/first"), "running job")
	require.True(t, d.Pending("/second"), "queued job")
	require.False(t, d.Pending("/other"))
	require.False(t, d.Pending(""))

	drain(t, d)
	require.False(t, d.Pending("/first"))
	require.False(t, d.Pending("/second"))
}

func TestJobWaitsUntilAnnounced(t *testing.T) {
	f := enginetest.NewFactory()
	d, pub := newTestDispatcher(t, f)

	announced := make(chan struct{})
	require.Equal(t, SegmentQueued, d.Submit(Job{Path: "/seg", SessionID: "s", SegmentIndex: 0, Announced: announced}))
	require.Never(t, func() bool { return len(f.Calls()) > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	require.Empty(t, pub.sdkStatuses())

	pub.Publish(protocol.NewStatus(time.Now(), protocol.StatusReady, "announcement"))
	close(announced)
	drain(t, d)

	msgs := pub.all()
	require.Len(t, f.Calls(), 1)
	_, first := msgs[0].(protocol.Status)
	require.True(t, first, "announcement precedes the job's status messages")
	started, ok := msgs[1].(protocol.SDKStatus)
	require.True(t, ok)
	require.Equal(t, protocol.SDKProcessingStarted, started.Status)
}

func TestUnannouncedJobReleasedByDrainDeadline(t *testing.T) {
	f := enginetest.NewFactory()
	d, _ := newTestDispatcher(t, f)

	require.Equal(t, SegmentQueued, d.Submit(Job{Path: "/seg", SessionID: "s", Announced: make(chan struct{})}))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)
	require.Empty(t, f.Calls())
}

func TestDrainWithoutStart(t *testing.T) {
	d := New(Options{Factory: enginetest.NewFactory()})
	require.NoError(t, d.Drain(context.Background()))
}

func TestJobSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := enginetest.NewFactory()
	d := New(Options{Factory: f, Tracer: tp.Tracer("test")})
	d.Start(context.Background())
	d.QueueSegment("/seg", "s", 2)
	drain(t, d)

	names := map[string]bool{}
	for _, s := range rec.Ended() {
		names[s.Name()] = true
	}
	require.True(t, names["dispatcher.job"])
	require.True(t, names["engine.run"])
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("session")
	require.True(t, ok)
	require.Equal(t, ModeSession, m)
	_, ok = ParseMode("batch")
	require.False(t, ok)
}
