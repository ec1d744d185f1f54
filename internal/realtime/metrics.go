package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes connection-level counters.
type Metrics struct {
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	Sends          prometheus.Counter
	SendDrops      prometheus.Counter
	Reconnects     prometheus.Counter
}

// NewMetrics registers connection counters with reg.
// A nil reg creates unregistered counters (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_realtime_frames_received_total",
			Help: "Inbound frames successfully decoded and dispatched.",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_realtime_frames_dropped_total",
			Help: "Inbound frames dropped due to decode failure.",
		}),
		Sends: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_realtime_sends_total",
			Help: "Outbound envelopes written to the socket.",
		}),
		SendDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_realtime_send_drops_total",
			Help: "Outbound envelopes dropped because the socket was not open.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_realtime_reconnects_total",
			Help: "Reconnect attempts scheduled after abnormal closes.",
		}),
	}
}
