// Package metrics declares the gateway's Prometheus collectors.
//
// Adapted from the teacher's internal/v1/metrics: the same promauto/
// namespace-subsystem-name convention, renamed from "video_conference" to
// "ircbridge" and repurposed from video-conferencing counters to the
// session/translation/backend counters this gateway actually produces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the current number of live IRC<->backend
	// bridge sessions (Gauge - current state).
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ircbridge",
		Subsystem: "session",
		Name:      "active",
		Help:      "Current number of active bridge sessions",
	})

	// FramesTranslated tracks frames successfully translated across the
	// bridge, labeled by direction (client_to_server / server_to_client)
	// and the IRC command or backend event tag involved.
	FramesTranslated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ircbridge",
		Subsystem: "bridge",
		Name:      "frames_translated_total",
		Help:      "Total frames translated across the bridge",
	}, []string{"direction", "command"})

	// EchoSuppressed counts backend events dropped because their message
	// id was found in a session's send cache.
	EchoSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ircbridge",
		Subsystem: "bridge",
		Name:      "echo_suppressed_total",
		Help:      "Total backend events suppressed as self-echo",
	})

	// BackendRPCDuration tracks the latency of calls into the backend RPC
	// client, labeled by operation (login, join_room, send_message, ...).
	BackendRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ircbridge",
		Subsystem: "backend",
		Name:      "rpc_duration_seconds",
		Help:      "Duration of backend RPC calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// CircuitBreakerState mirrors the teacher's circuit breaker gauge:
	// 0 Closed, 1 Open, 2 Half-Open, labeled by the breaker's name.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ircbridge",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of a circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"breaker"})

	// RateLimitExceeded counts dropped frames per guarded IRC command
	// class (JOIN, PRIVMSG, NICK).
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ircbridge",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total frames dropped for exceeding a per-session rate limit",
	}, []string{"command"})

	// FleetHeartbeats counts heartbeat publish attempts and their outcome.
	FleetHeartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ircbridge",
		Subsystem: "fleet",
		Name:      "heartbeats_total",
		Help:      "Total fleet heartbeat publish attempts",
	}, []string{"status"})
)

// IncSession increments the active session gauge.
func IncSession() {
	ActiveSessions.Inc()
}

// DecSession decrements the active session gauge.
func DecSession() {
	ActiveSessions.Dec()
}
