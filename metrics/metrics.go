// Package metrics exposes bridge counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.viam.com/inertialsense/protocol"
)

const namespace = "inertialsense"

// Metrics holds the bridge's counters. A nil *Metrics records nothing.
type Metrics struct {
	frames         *prometheus.CounterVec
	published      *prometheus.CounterVec
	combined       *prometheus.CounterVec
	linkDropped    prometheus.Gauge
	linkBadPackets prometheus.Gauge
}

// Frame dispatch outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeIgnored    = "ignored"
	OutcomeFailed     = "failed"
)

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Device frames by data set and dispatch outcome.",
		}, []string{"did", "outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages published by topic.",
		}, []string{"topic"}),
		combined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "combiner_groups_total",
			Help:      "Complete groups emitted by each combiner slot.",
		}, []string{"slot"}),
		linkDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_frames_dropped",
			Help:      "Frames dropped because the device link queue was full.",
		}),
		linkBadPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_bad_packets",
			Help:      "Packets discarded for framing or checksum errors.",
		}),
	}
	for _, c := range []prometheus.Collector{m.frames, m.published, m.combined, m.linkDropped, m.linkBadPackets} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FrameDispatched implements registry.Observer.
func (m *Metrics) FrameDispatched(did protocol.DID) {
	m.frame(did, OutcomeDispatched)
}

// FrameIgnored implements registry.Observer.
func (m *Metrics) FrameIgnored(did protocol.DID) {
	m.frame(did, OutcomeIgnored)
}

// FrameFailed implements registry.Observer.
func (m *Metrics) FrameFailed(did protocol.DID) {
	m.frame(did, OutcomeFailed)
}

func (m *Metrics) frame(did protocol.DID, outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(did.String(), outcome).Inc()
}

// Published counts one message on topic.
func (m *Metrics) Published(topic string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

// Combined counts one group emitted by slot.
func (m *Metrics) Combined(slot string) {
	if m == nil {
		return
	}
	m.combined.WithLabelValues(slot).Inc()
}

// LinkStats records the device link's drop counters.
func (m *Metrics) LinkStats(dropped, badPackets uint64) {
	if m == nil {
		return
	}
	m.linkDropped.Set(float64(dropped))
	m.linkBadPackets.Set(float64(badPackets))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
