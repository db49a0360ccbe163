package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_ws_connections",
			Help: "Current number of registered websocket connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_ws_rooms",
			Help: "Current number of active collaboration rooms.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_ws_messages_delivered_total",
			Help: "Total websocket envelopes delivered to clients.",
		},
	)
	wsEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_ws_evictions_total",
			Help: "Total connections reclaimed by heartbeat eviction or forced disconnect.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsEvictions)
}

func setConnections(count int) {
	wsConnections.Set(float64(count))
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func incEvictions() {
	wsEvictions.Inc()
}
