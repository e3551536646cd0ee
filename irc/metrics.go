package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry holds every collector exported by the server.
	Registry = prometheus.NewRegistry()

	sessionsActive = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "ircengine_sessions_active",
		Help: "Number of sessions currently being served",
	})

	sessionsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "ircengine_sessions_total",
		Help: "Total number of sessions served",
	})

	commandsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircengine_commands_total",
			Help: "Inbound commands by keyword",
		},
		[]string{"command"},
	)

	repliesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircengine_replies_total",
			Help: "Outbound numeric and command replies by code",
		},
		[]string{"code"},
	)

	terminationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircengine_session_terminations_total",
			Help: "Session terminations by reason",
		},
		[]string{"reason"},
	)
)

// Termination reasons
const (
	reasonQuit      = "quit"
	reasonMalformed = "malformed"
	reasonAuth      = "auth"
	reasonClosed    = "closed"
	reasonError     = "error"
)

// commandLabel keeps the commands_total cardinality bounded.
func commandLabel(command string) string {
	if _, ok := handlers[command]; ok {
		return command
	}
	return "UNKNOWN"
}
