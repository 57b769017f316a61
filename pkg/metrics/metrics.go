// Package metrics collects lightweight Prometheus counters/gauges across
// the SIP Agent, Media Session and Transport components. The spec's core
// has no HTTP exporter requirement (§1 scope), so this package only
// registers collectors against prometheus.DefaultRegisterer and leaves
// serving /metrics to the embedder; it exists purely as the ambient
// diagnostics layer the teacher's pkg/dialog/metrics.go and
// pkg/rtp/metrics.go carry for dialog/RTP counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector this module exports. A process
// typically creates exactly one via Default(); tests may call New()
// directly against a private prometheus.Registerer to avoid collisions.
type Registry struct {
	DialogsActive    prometheus.Gauge
	RegisterAttempts *prometheus.CounterVec // labels: result={success,failure}
	CallsTotal       *prometheus.CounterVec // labels: result={confirmed,failed,cancelled}

	RTPPacketsSent     *prometheus.CounterVec // labels: media={audio,video}
	RTPPacketsReceived *prometheus.CounterVec
	RTCPReportsSent    *prometheus.CounterVec

	TransportErrors *prometheus.CounterVec // labels: kind
}

// New registers a fresh set of collectors against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		DialogsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "uacore",
			Subsystem: "sip",
			Name:      "dialogs_active",
			Help:      "Number of SIP dialogs currently tracked by the Agent.",
		}),
		RegisterAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "sip",
			Name:      "register_attempts_total",
			Help:      "REGISTER attempts by outcome.",
		}, []string{"result"}),
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "sip",
			Name:      "calls_total",
			Help:      "Dialogs reaching a terminal state, by outcome.",
		}, []string{"result"}),
		RTPPacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "media",
			Name:      "rtp_packets_sent_total",
			Help:      "RTP packets sent, by media kind.",
		}, []string{"media"}),
		RTPPacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "media",
			Name:      "rtp_packets_received_total",
			Help:      "RTP packets received, by media kind.",
		}, []string{"media"}),
		RTCPReportsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "media",
			Name:      "rtcp_reports_sent_total",
			Help:      "RTCP sender reports sent, by media kind.",
		}, []string{"media"}),
		TransportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uacore",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Catastrophic transport errors, by transport kind.",
		}, []string{"kind"}),
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns a process-wide Registry backed by
// prometheus.DefaultRegisterer, created on first use. Every Agent/Media
// Session/Transport in the process shares it, matching the teacher's own
// package-level metrics singleton in pkg/dialog/metrics.go.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}
