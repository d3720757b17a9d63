// Package metrics defines the sink contracts used to observe command
// lifecycle events. Concrete sinks (Prometheus, InfluxDB) live in
// infra/metrics and register themselves with the factory so they can be
// selected from configuration; several configured sinks are combined
// automatically.
package metrics
