package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandsDispatched *prometheus.CounterVec
	commandsResolved   *prometheus.CounterVec
	resolveLatency     *prometheus.HistogramVec
	pendingCommands    prometheus.Gauge
	connectedVehicles  prometheus.Gauge
	sendFailures       prometheus.Counter
	acksRejected       prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Gauge, prometheus.Gauge, prometheus.Counter, prometheus.Counter) {
	disp := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_dispatched_total",
			Help: "Number of commands sent to vehicles",
		},
		[]string{"command_type"},
	)
	res := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_resolved_total",
			Help: "Number of commands removed from a pending store, by outcome",
		},
		[]string{"outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_resolution_latency_seconds",
			Help:    "Time between dispatch and resolution of a command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	pend := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "commands_pending",
		Help: "Commands currently awaiting an acknowledgment",
	})
	conn := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vehicles_connected",
		Help: "Vehicles with an open session",
	})
	fail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "command_send_failures_total",
		Help: "Envelopes that could not be queued on a vehicle connection",
	})
	rej := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acks_rejected_total",
		Help: "Acknowledgments discarded because they did not verify",
	})
	return disp, res, lat, pend, conn, fail, rej
}

func init() {
	commandsDispatched, commandsResolved, resolveLatency, pendingCommands, connectedVehicles, sendFailures, acksRejected = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(commandsDispatched, commandsResolved, resolveLatency, pendingCommands, connectedVehicles, sendFailures, acksRejected)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	commandsDispatched, commandsResolved, resolveLatency, pendingCommands, connectedVehicles, sendFailures, acksRejected = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
