package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/fleetcmd/core/factory"
	"github.com/kilianp07/fleetcmd/core/token"
)

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `server:
  http_addr: ":8080"
  send_queue: 8
auth:
  secret: "s3cret"
  command_ttl_seconds: 120
  strict_cancel: true
dispatch:
  send_timeout_ms: 250
  sweep_interval_seconds: 30
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  qos: 1
journal:
  enabled: true
  backend: "sqlite"
logging:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http_addr", cfg.Server.HTTPAddr, ":8080"},
		{"ws_path default", cfg.Server.WSPath, "/ws"},
		{"send_queue", cfg.Server.SendQueue, 8},
		{"secret", cfg.Auth.Secret, "s3cret"},
		{"operator ttl default", cfg.Auth.OperatorTTLSeconds, 3600},
		{"command ttl", cfg.Auth.TokenConfig().CommandTTL, 2 * time.Minute},
		{"strict_cancel", cfg.Auth.StrictCancel, true},
		{"send timeout", cfg.Dispatch.SendTimeout(), 250 * time.Millisecond},
		{"sweep", cfg.Dispatch.SweepInterval(), 30 * time.Second},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"mqtt qos", cfg.MQTT.QoS, byte(1)},
		{"mqtt prefix default", cfg.MQTT.TopicPrefix, "fleet/commands"},
		{"journal path default", cfg.Journal.Path, "commands.db"},
		{"level", cfg.Logging.Level, "debug"},
		{"device url default", cfg.Device.CoordinatorURL, "ws://localhost:3000/ws"},
		{"apply delay default", cfg.Device.ApplyDelay(), time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"auth":{"secret":"file"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("K_AUTH__SECRET", "env")
	t.Setenv("K_DEVICE__COORDINATOR_URL", "wss://coordinator.example/ws")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Auth.Secret != "env" {
		t.Fatalf("env override not applied: %s", cfg.Auth.Secret)
	}
	if cfg.Device.CoordinatorURL != "wss://coordinator.example/ws" {
		t.Fatalf("unexpected url %s", cfg.Device.CoordinatorURL)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("K_AUTH__SECRET", "env-only")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Auth.Secret != "env-only" || cfg.Server.HTTPAddr != ":3000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_addr: \":1\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, token.ErrMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestValidateSections(t *testing.T) {
	base := func() Config {
		c := Config{Auth: AuthConfig{Secret: "s"}}
		c.SetDefaults()
		return c
	}
	cases := map[string]func(*Config){
		"ws path":       func(c *Config) { c.Server.WSPath = "ws" },
		"device scheme": func(c *Config) { c.Device.CoordinatorURL = "http://localhost:3000" },
		"log level":     func(c *Config) { c.Logging.Level = "loud" },
		"journal":       func(c *Config) { c.Journal.Enabled = true; c.Journal.Backend = "csv" },
		"mqtt broker":   func(c *Config) { c.MQTT.Enabled = true },
		"metrics sink":  func(c *Config) { c.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}} },
	}
	for name, mutate := range cases {
		c := base()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := Load("config.toml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
