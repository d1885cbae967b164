// Package metrics exposes fastd-core's Prometheus metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "fastd_core"
	subsystem = "datapath"
)

const labelReason = "reason"

// Collector holds every Prometheus metric fastd-core's datapath updates.
// It satisfies internal/fastd.Module's Metrics interface directly.
type Collector struct {
	// HandshakesReceived counts handshake datagrams the classifier queued
	// onto the ring.
	HandshakesReceived prometheus.Counter

	// RingDrops counts handshake datagrams dropped because the ring was
	// full.
	RingDrops prometheus.Counter

	// DataDrops counts data packets the classifier or decapsulator
	// dropped, labeled by the reason (no_peer, not_running, bad_version,
	// short, unknown_type, ...).
	DataDrops *prometheus.CounterVec

	// Peers tracks the number of peers the module currently holds,
	// configured or not.
	Peers prometheus.Gauge
}

// NewCollector creates a Collector with every metric registered against
// reg. A nil reg registers against prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		HandshakesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshakes_received_total",
			Help:      "Total handshake datagrams queued onto the ring.",
		}),
		RingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ring_drops_total",
			Help:      "Total handshake datagrams dropped due to a full ring.",
		}),
		DataDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "data_drops_total",
			Help:      "Total data packets dropped, labeled by reason.",
		}, []string{labelReason}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers currently held, configured or not.",
		}),
	}

	reg.MustRegister(c.HandshakesReceived, c.RingDrops, c.DataDrops, c.Peers)

	return c
}

// HandshakeReceived implements fastd.Metrics.
func (c *Collector) HandshakeReceived() { c.HandshakesReceived.Inc() }

// RingDropped implements fastd.Metrics.
func (c *Collector) RingDropped() { c.RingDrops.Inc() }

// DataDropped implements fastd.Metrics.
func (c *Collector) DataDropped(reason string) { c.DataDrops.WithLabelValues(reason).Inc() }

// SetPeerCount updates the peers gauge; callers pass len(module.Peers()).
func (c *Collector) SetPeerCount(n int) { c.Peers.Set(float64(n)) }
