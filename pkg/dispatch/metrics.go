package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autobridge",
		Name:      "commands_total",
		Help:      "Automation commands dispatched, by opcode.",
	}, []string{"opcode"})
	pendingObservers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "autobridge",
		Name:      "pending_observers",
		Help:      "Outstanding delayed-command observers, by session.",
	}, []string{"session"})
)
