// Package infra contains the technical adapters of the coordinator: the
// vehicle WebSocket transport, metrics sinks, the MQTT event mirror and
// Sentry reporting. They depend only on interfaces defined in core.
package infra
