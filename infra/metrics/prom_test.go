package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/factory"
	coremetrics "github.com/kilianp07/fleetcmd/core/metrics"
)

func TestPromSink_RecordCommandEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	if err := sink.RecordCommandEvent(events.CommandEvent{Phase: events.PhaseSent, VehicleID: "vehicle-1", Type: "lock"}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := sink.RecordCommandEvent(events.CommandEvent{Phase: events.PhaseAcknowledged, VehicleID: "vehicle-1", Type: "lock", Latency: 150 * time.Millisecond}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP command_lifecycle_events_total Command lifecycle transitions by phase
# TYPE command_lifecycle_events_total counter
command_lifecycle_events_total{command_type="lock",phase="acknowledged"} 1
command_lifecycle_events_total{command_type="lock",phase="sent"} 1
`
	if err := testutil.CollectAndCompare(sink.events, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if n := testutil.CollectAndCount(sink.latency); n != 1 {
		t.Errorf("expected one latency series, got %d", n)
	}
}

func TestPromSink_RecordFleetSize(t *testing.T) {
	sinkIf, err := NewPromSinkWithRegistry(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)
	if err := sink.RecordFleetSize(3); err != nil {
		t.Fatalf("fleet size: %v", err)
	}
	if v := testutil.ToFloat64(sink.fleet); v != 3 {
		t.Fatalf("expected 3 got %v", v)
	}
}

func TestPromSink_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first sink: %v", err)
	}
	second, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second sink should reuse collectors: %v", err)
	}
	_ = first.RecordCommandEvent(events.CommandEvent{Phase: events.PhaseAbandoned})
	_ = second.RecordCommandEvent(events.CommandEvent{Phase: events.PhaseAbandoned})
	if v := testutil.ToFloat64(first.(*PromSink).events.WithLabelValues("abandoned", "")); v != 2 {
		t.Fatalf("expected shared counter at 2, got %v", v)
	}
}

func TestRegisteredSinks(t *testing.T) {
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	if err != nil {
		t.Fatalf("nop sink: %v", err)
	}
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
	if _, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}}); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}
