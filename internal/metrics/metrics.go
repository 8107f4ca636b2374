// Package metrics exposes the endpoint's packet-level counters via
// Prometheus, grounded on runZeroInc/sockstats's use of
// github.com/prometheus/client_golang to publish socket-level counters. It
// is entirely optional: nothing in the protocol core depends on it, it
// only observes events the event loop already produces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the counters for one endpoint. A nil *Collector is safe
// to use: every method becomes a no-op, so callers that don't wire metrics
// pay no cost.
type Collector struct {
	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	Retransmissions prometheus.Counter
	PacketsDropped  *prometheus.CounterVec
	MalformedFrames prometheus.Counter
	Connected       prometheus.Gauge
}

// New registers a fresh set of counters under reg, labeled with role
// ("initiator" or "responder").
func New(reg prometheus.Registerer, role string) *Collector {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"role": role}

	return &Collector{
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_packets_sent_total",
			Help:        "Total SHAM packets transmitted, excluding retransmissions (counted by sham_retransmissions_total).",
			ConstLabels: constLabels,
		}),
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_packets_received_total",
			Help:        "Total SHAM packets received from the bound peer.",
			ConstLabels: constLabels,
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_bytes_sent_total",
			Help:        "Total payload bytes transmitted.",
			ConstLabels: constLabels,
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_bytes_received_total",
			Help:        "Total payload bytes delivered to the consumer.",
			ConstLabels: constLabels,
		}),
		Retransmissions: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_retransmissions_total",
			Help:        "Total packets retransmitted: data segments after an RTO expiry and FIN retries.",
			ConstLabels: constLabels,
		}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "sham_packets_dropped_total",
			Help:        "Total packets dropped, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		MalformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sham_malformed_frames_total",
			Help:        "Total datagrams that failed to decode.",
			ConstLabels: constLabels,
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "sham_connected",
			Help:        "1 while the connection is established, 0 otherwise.",
			ConstLabels: constLabels,
		}),
	}
}

// DropReason records a drop with the given reason label, e.g. "duplicate",
// "no-space", "slots-full", "loss-simulator", "peer-mismatch".
func (c *Collector) DropReason(reason string) {
	if c == nil {
		return
	}
	c.PacketsDropped.WithLabelValues(reason).Inc()
}

// ServeHTTP mounts /metrics on addr in the background; it returns
// immediately and logs nothing itself, matching the fire-and-forget style
// the teacher uses for its tun/NIC goroutines.
func ServeHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, mux) //nolint:errcheck
}
