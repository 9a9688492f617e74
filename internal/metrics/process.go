// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_engine_process_terminate_total",
		Help: "Signals sent to engine process groups by signal and result",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_engine_process_wait_total",
		Help: "Engine process exits observed during termination by outcome",
	}, []string{"outcome"})

	// RetentionDeletedTotal counts recording files removed by the retention sweeper.
	RetentionDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_retention_deleted_total",
		Help: "Total number of recording files removed by the retention sweeper",
	}, []string{"kind"})
)

// IncProcTerminate records a termination signal outcome.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records the wait outcome of a terminated process.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}

// IncRetentionDeleted records a file removed by the retention sweeper.
func IncRetentionDeleted(kind string) {
	RetentionDeletedTotal.WithLabelValues(kind).Inc()
}
