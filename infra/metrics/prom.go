// Package metrics provides MetricsSink implementations backed by Prometheus
// and InfluxDB.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/fleetcmd/core/events"
	coremetrics "github.com/kilianp07/fleetcmd/core/metrics"
)

// PromSink records command lifecycle events in Prometheus metrics.
type PromSink struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	fleet   prometheus.Gauge
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ev := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "command_lifecycle_events_total",
		Help: "Command lifecycle transitions by phase",
	}, []string{"phase", "command_type"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "command_lifecycle_latency_seconds",
		Help:    "Time from dispatch to the resolving transition",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_sessions",
		Help: "Vehicles currently holding a session",
	})

	var err error
	if ev, err = register(reg, ev); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if fleet, err = register(reg, fleet); err != nil {
		return nil, err
	}
	return &PromSink{events: ev, latency: latency, fleet: fleet}, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCommandEvent counts the transition and observes its latency when the
// phase resolves the command.
func (s *PromSink) RecordCommandEvent(ev events.CommandEvent) error {
	s.events.WithLabelValues(string(ev.Phase), ev.Type).Inc()
	if ev.Phase.Terminal() {
		s.latency.WithLabelValues(string(ev.Phase)).Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordFleetSize sets the gauge to the number of connected vehicles.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}
