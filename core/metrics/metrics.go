package metrics

import "github.com/kilianp07/fleetcmd/core/events"

// MetricsSink records command lifecycle events for observability purposes.
type MetricsSink interface {
	RecordCommandEvent(ev events.CommandEvent) error
}

// FleetSizeRecorder records the number of connected vehicles.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCommandEvent(events.CommandEvent) error { return nil }

func (NopSink) RecordFleetSize(int) error { return nil }
