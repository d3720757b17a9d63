package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/fleetcmd/core/token"
)

// AuthConfig defines the shared signing secret and token lifetimes.
type AuthConfig struct {
	Secret             string `json:"secret"`
	OperatorTTLSeconds int    `json:"operator_ttl_seconds"`
	CommandTTLSeconds  int    `json:"command_ttl_seconds"`
	// StrictCancel makes devices ignore cancel requests without a valid
	// signed cancel token.
	StrictCancel bool `json:"strict_cancel"`
}

// SetDefaults applies the token lifetimes: one hour for operators, five
// minutes for commands.
func (c *AuthConfig) SetDefaults() {
	if c.OperatorTTLSeconds == 0 {
		c.OperatorTTLSeconds = int(token.DefaultOperatorTTL / time.Second)
	}
	if c.CommandTTLSeconds == 0 {
		c.CommandTTLSeconds = int(token.DefaultCommandTTL / time.Second)
	}
}

// Validate rejects a missing secret.
func (c AuthConfig) Validate() error {
	if c.Secret == "" {
		return token.ErrMissingSecret
	}
	if c.OperatorTTLSeconds < 0 || c.CommandTTLSeconds < 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

// TokenConfig converts the section to a token.Config.
func (c AuthConfig) TokenConfig() token.Config {
	return token.Config{
		Secret:      c.Secret,
		OperatorTTL: time.Duration(c.OperatorTTLSeconds) * time.Second,
		CommandTTL:  time.Duration(c.CommandTTLSeconds) * time.Second,
	}
}
