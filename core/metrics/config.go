package metrics

import (
	"fmt"

	"github.com/kilianp07/fleetcmd/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	// Sinks lists the sinks to build, e.g. {type: prometheus} or {type: influx, conf: {...}}.
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr is the listen address of the /metrics endpoint. Empty disables it.
	PrometheusAddr string `json:"prometheus_addr"`
}

// Validate rejects sinks whose type is not registered.
func (c Config) Validate() error {
	if err := sinkRegistry.Check(c.Sinks); err != nil {
		return fmt.Errorf("sinks: %w", err)
	}
	return nil
}
