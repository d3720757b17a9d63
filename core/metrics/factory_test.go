package metrics

import (
	"errors"
	"testing"

	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/factory"
)

type countingSink struct {
	events int
	fleet  int
	err    error
}

func (c *countingSink) RecordCommandEvent(events.CommandEvent) error {
	c.events++
	return c.err
}

func (c *countingSink) RecordFleetSize(n int) error {
	c.fleet = n
	return nil
}

func TestNewMetricsSinkEmptyIsNop(t *testing.T) {
	s, err := NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if _, ok := s.(NopSink); !ok {
		t.Fatalf("expected NopSink got %T", s)
	}
}

func TestNewMetricsSinkMulti(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	_ = RegisterMetricsSink("test-a", func(map[string]any) (MetricsSink, error) { return a, nil })
	_ = RegisterMetricsSink("test-b", func(map[string]any) (MetricsSink, error) { return b, nil })

	s, err := NewMetricsSink([]factory.ModuleConfig{{Type: "test-a"}, {Type: "test-b"}})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := s.RecordCommandEvent(events.CommandEvent{Phase: events.PhaseSent}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.events != 1 || b.events != 1 {
		t.Fatalf("fan-out failed: %d %d", a.events, b.events)
	}
	if err := s.(FleetSizeRecorder).RecordFleetSize(4); err != nil || a.fleet != 4 || b.fleet != 4 {
		t.Fatalf("fleet size not forwarded: %v", err)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &countingSink{}
	m := NewMultiSink(&countingSink{err: boom}, ok)
	err := m.RecordCommandEvent(events.CommandEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
	if ok.events != 1 {
		t.Fatalf("later sinks should still receive the event")
	}
}

func TestNewMetricsSinkUnknown(t *testing.T) {
	if _, err := NewMetricsSink([]factory.ModuleConfig{{Type: "does-not-exist"}}); err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}

func TestConfigValidateSinkTypes(t *testing.T) {
	_ = RegisterMetricsSink("test-valid", func(map[string]any) (MetricsSink, error) { return NopSink{}, nil })
	if err := (Config{Sinks: []factory.ModuleConfig{{Type: "test-valid"}}}).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (Config{Sinks: []factory.ModuleConfig{{Type: "carrier-pigeon"}}}).Validate(); err == nil {
		t.Fatal("expected unknown sink error")
	}
}
