package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are registered per server so several relays can run in one process.
type metrics struct {
	registry    *prometheus.Registry
	peers       prometheus.Gauge
	connections prometheus.Counter
	messages    prometheus.Counter
	malformed   prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry:    prometheus.NewRegistry(),
		peers:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "wisochat_relay_peers", Help: "Currently connected peers"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{Name: "wisochat_relay_connections_total", Help: "Peer connections accepted"}),
		messages:    prometheus.NewCounter(prometheus.CounterOpts{Name: "wisochat_relay_messages_total", Help: "Chat messages published to the bus"}),
		malformed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "wisochat_relay_malformed_frames_total", Help: "Inbound frames that failed to decode"}),
	}
	m.registry.MustRegister(m.peers, m.connections, m.messages, m.malformed)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
