// Package mqtt mirrors command lifecycle events to an MQTT broker so fleet
// tooling can follow dispatches without polling the coordinator.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/fleetcmd/core/events"
	coremon "github.com/kilianp07/fleetcmd/core/monitoring"
	"github.com/kilianp07/fleetcmd/core/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	Retain      bool        `json:"retain"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "fleetcmd-coordinator"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "fleet/commands"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Mirror publishes lifecycle events to {prefix}/{vehicleId}/{phase}.
type Mirror struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewMirror connects to the MQTT broker. log may be nil.
func NewMirror(cfg Config, log logger.Logger) (*Mirror, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log = logger.OrNop(log)
	m := &Mirror{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if m.maxRetries <= 0 {
		m.maxRetries = 3
	}
	if m.backoff <= 0 {
		m.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	m.cli = c
	return m, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topic returns the topic an event is published on.
func (m *Mirror) Topic(ev events.CommandEvent) string {
	vehicle := ev.VehicleID
	if vehicle == "" {
		vehicle = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s", m.prefix, vehicle, ev.Phase)
}

// Publish sends ev as JSON, retrying with exponential backoff.
func (m *Mirror) Publish(ev events.CommandEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := m.Topic(ev)
	var publishErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		token := m.cli.Publish(topic, m.qos, m.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			m.logger.Debugf("mirrored %s to %s", ev.Phase, topic)
			return nil
		}
		m.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < m.maxRetries {
			time.Sleep(m.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{
		"vehicle_id": ev.VehicleID,
		"command_id": ev.CommandID,
		"module":     "mqtt",
	})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Run publishes every event received on ch until ch is closed or ctx ends.
func (m *Mirror) Run(ctx context.Context, ch <-chan events.CommandEvent) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = m.Publish(ev)
		case <-ctx.Done():
			return
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (m *Mirror) Disconnect() {
	if m.cli != nil && m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
}
