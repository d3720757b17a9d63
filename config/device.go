package config

import (
	"fmt"
	"net/url"
	"time"
)

// DeviceConfig defines the simulated vehicle.
type DeviceConfig struct {
	CoordinatorURL string `json:"coordinator_url"`
	ApplyDelayMS   int    `json:"apply_delay_ms"`
}

// SetDefaults points the device at a local coordinator and applies commands
// after one second.
func (c *DeviceConfig) SetDefaults() {
	if c.CoordinatorURL == "" {
		c.CoordinatorURL = "ws://localhost:3000/ws"
	}
	if c.ApplyDelayMS == 0 {
		c.ApplyDelayMS = 1000
	}
}

// Validate checks the coordinator URL scheme.
func (c DeviceConfig) Validate() error {
	u, err := url.Parse(c.CoordinatorURL)
	if err != nil {
		return fmt.Errorf("coordinator_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("coordinator_url must use ws or wss, got %q", u.Scheme)
	}
	if c.ApplyDelayMS < 0 {
		return fmt.Errorf("apply_delay_ms must not be negative")
	}
	return nil
}

// ApplyDelay returns the simulated apply duration.
func (c DeviceConfig) ApplyDelay() time.Duration {
	return time.Duration(c.ApplyDelayMS) * time.Millisecond
}
