// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BroadcastSubscribers reports connected subscribers by transport.
	BroadcastSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vitalsd_broadcast_subscribers",
		Help: "Number of connected broadcast subscribers by transport",
	}, []string{"transport"})

	// BroadcastMessagesTotal counts fan-out passes by message type.
	BroadcastMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_broadcast_messages_total",
		Help: "Total number of broadcast messages by type",
	}, []string{"type"})

	// BroadcastPrunedTotal counts subscribers removed after a failed send.
	BroadcastPrunedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsd_broadcast_pruned_total",
		Help: "Total number of subscribers pruned after a failed send by transport",
	}, []string{"transport"})

	// BroadcastMirrorErrorsTotal counts failed publishes to the Redis mirror.
	BroadcastMirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsd_broadcast_mirror_errors_total",
		Help: "Total number of failed publishes to the broadcast mirror",
	})
)

// SubscriberAdded increments the subscriber gauge for transport.
func SubscriberAdded(transport string) {
	BroadcastSubscribers.WithLabelValues(transport).Inc()
}

// SubscriberRemoved decrements the subscriber gauge for transport.
func SubscriberRemoved(transport string) {
	BroadcastSubscribers.WithLabelValues(transport).Dec()
}

// IncBroadcast records one broadcast pass.
func IncBroadcast(msgType string) {
	if msgType == "" {
		msgType = "unknown"
	}
	BroadcastMessagesTotal.WithLabelValues(msgType).Inc()
}

// IncPruned records a pruned subscriber.
func IncPruned(transport string) {
	BroadcastPrunedTotal.WithLabelValues(transport).Inc()
}

// IncMirrorError records a failed mirror publish.
func IncMirrorError() {
	BroadcastMirrorErrorsTotal.Inc()
}
