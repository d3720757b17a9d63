package dispatch

import "time"

// Config defines dispatch-related settings.
type Config struct {
	// SendTimeoutMS bounds how long Dispatch waits to enqueue on a saturated
	// vehicle connection.
	SendTimeoutMS int `json:"send_timeout_ms"`
	// SweepIntervalSeconds enables the expiry sweep when positive.
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// SendTimeout returns the enqueue timeout, defaulting to one second.
func (c Config) SendTimeout() time.Duration {
	if c.SendTimeoutMS <= 0 {
		return time.Second
	}
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

// SweepInterval returns the sweep period, zero when disabled.
func (c Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
