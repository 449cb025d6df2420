package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "autobridge",
		Name:      "ws_connections_active_total",
		Help:      "Number of active automation WebSocket connections.",
	})
	repliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autobridge",
		Name:      "replies_total",
		Help:      "Replies sent to drivers, by status.",
	}, []string{"status"})
)
