// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchQueueDepth reports the number of jobs waiting for the worker.
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitalsd_dispatcher_queue_depth",
		Help: "Number of analysis jobs waiting in the dispatcher queue",
	})

	// DispatchSubmitTotal counts submissions by mode and disposition.
	DispatchSubmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_dispatcher_submissions_total",
		Help: "Total number of analysis submissions by mode and disposition",
	}, []string{"mode", "disposition"})

	// DispatchJobsTotal counts finished jobs by mode and result.
	DispatchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_dispatcher_jobs_total",
		Help: "Total number of analysis jobs by mode and result",
	}, []string{"mode", "result"})

	// DispatchJobDuration observes wall time of one engine invocation.
	DispatchJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vitalsd_dispatcher_job_duration_seconds",
		Help:    "Wall time of one analysis job",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"mode"})

	// DispatchQueueWait observes time between enqueue and start.
	DispatchQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vitalsd_dispatcher_queue_wait_seconds",
		Help:    "Time an analysis job spent queued before the worker picked it up",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	// EngineResultsTotal counts engine results by kind.
	EngineResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_engine_results_total",
		Help: "Total number of analysis engine results by kind",
	}, []string{"kind"})
)

// SetQueueDepth publishes the current queue depth.
func SetQueueDepth(depth int) {
	DispatchQueueDepth.Set(float64(depth))
}

// IncSubmit records a submission disposition.
func IncSubmit(mode, disposition string) {
	DispatchSubmitTotal.WithLabelValues(mode, disposition).Inc()
}

// ObserveJob records a finished job's result and duration.
func ObserveJob(mode, result string, d time.Duration) {
	DispatchJobsTotal.WithLabelValues(mode, result).Inc()
	DispatchJobDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveQueueWait records how long a job waited in the queue.
func ObserveQueueWait(d time.Duration) {
	DispatchQueueWait.Observe(d.Seconds())
}

// IncEngineResult records one engine result by kind.
func IncEngineResult(kind string) {
	EngineResultsTotal.WithLabelValues(kind).Inc()
}
