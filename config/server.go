package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig defines the coordinator listener.
type ServerConfig struct {
	HTTPAddr        string `json:"http_addr"`
	WSPath          string `json:"ws_path"`
	SendQueue       int    `json:"send_queue"`
	PongWaitSeconds int    `json:"pong_wait_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":3000"
	}
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if c.SendQueue == 0 {
		c.SendQueue = 32
	}
	if c.PongWaitSeconds == 0 {
		c.PongWaitSeconds = 60
	}
}

// Validate checks mandatory fields.
func (c ServerConfig) Validate() error {
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws_path must start with /")
	}
	if c.SendQueue < 0 {
		return fmt.Errorf("send_queue must not be negative")
	}
	return nil
}

// PongWait returns the read deadline extension granted by each pong.
func (c ServerConfig) PongWait() time.Duration {
	return time.Duration(c.PongWaitSeconds) * time.Second
}
