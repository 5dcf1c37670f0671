package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_connections_total",
		Help: "Accepted websocket connections since start",
	})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_sessions",
		Help: "Currently live collaboration sessions",
	})

	metricAuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_auth_failures_total",
		Help: "Rejected websocket handshakes",
	})

	metricMessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_messages_received_total",
		Help: "Inbound client messages by event",
	}, []string{"event"})

	metricProtocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_protocol_errors_total",
		Help: "Malformed or unsupported inbound messages",
	})

	metricBroadcastFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_broadcast_frames_total",
		Help: "Frames delivered to recipients by event",
	}, []string{"event"})

	metricDroppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_dropped_frames_total",
		Help: "Frames dropped because a recipient buffer was full or closed",
	})
)
