package definition

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the packet pump's congestion state as Prometheus gauges
// and counters, keyed by (ship, bone), the way a socket-accounting layer
// would track per-connection congestion windows.
type Metrics struct {
	Cwnd       *prometheus.GaugeVec
	Ssthresh   *prometheus.GaugeVec
	RTOMillis  *prometheus.GaugeVec
	NumLive    *prometheus.GaugeVec
	Retransmit *prometheus.CounterVec
	Dones      *prometheus.CounterVec
}

// NewMetrics builds and registers a fresh Metrics set against reg. Passing
// a dedicated registry (rather than the global default) lets a host run
// more than one transport in the same process during tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	labels := []string{"ship", "bone"}
	m := &Metrics{
		Cwnd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ames",
			Subsystem: "congestion",
			Name:      "cwnd",
			Help:      "Current congestion window, in fragments.",
		}, labels),
		Ssthresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ames",
			Subsystem: "congestion",
			Name:      "ssthresh",
			Help:      "Current slow-start threshold, in fragments.",
		}, labels),
		RTOMillis: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ames",
			Subsystem: "congestion",
			Name:      "rto_milliseconds",
			Help:      "Current retransmit timeout.",
		}, labels),
		NumLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ames",
			Subsystem: "congestion",
			Name:      "num_live",
			Help:      "Fragments currently in flight awaiting ack.",
		}, labels),
		Retransmit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ames",
			Subsystem: "congestion",
			Name:      "retransmits_total",
			Help:      "Fragments resent by skip-threshold, fast-retransmit, or timeout.",
		}, labels),
		Dones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ames",
			Subsystem: "pump",
			Name:      "dones_total",
			Help:      "Messages completed, successfully or with an error.",
		}, append(labels, "ok")),
	}
	reg.MustRegister(m.Cwnd, m.Ssthresh, m.RTOMillis, m.NumLive, m.Retransmit, m.Dones)
	return m
}
