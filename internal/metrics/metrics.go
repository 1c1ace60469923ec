// Package metrics exposes Prometheus collectors for terminal sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "termbridge"

var (
	// LiveSessions is the number of sessions in the registry.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Terminal sessions currently registered.",
	})

	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Terminal sessions whose process was spawned, by protocol.",
	}, []string{"protocol"})

	Teardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_teardowns_total",
		Help:      "Session teardowns, by reason.",
	}, []string{"reason"})

	SpawnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spawn_failures_total",
		Help:      "Session commands that failed to start.",
	})

	CredentialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_failures_total",
		Help:      "Ephemeral keys that could not be written.",
	})

	CredentialsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credentials_swept_total",
		Help:      "Orphaned key files removed by the sweeper.",
	})

	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_messages_dropped_total",
		Help:      "Client messages discarded by limits, by cause.",
	}, []string{"cause"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
