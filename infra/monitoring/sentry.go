// Package monitoring reports coordinator errors to Sentry.
package monitoring

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/fleetcmd/config"
	coremon "github.com/kilianp07/fleetcmd/core/monitoring"
)

// Option adjusts the Sentry client options before initialization.
type Option func(*sentry.ClientOptions)

// NewSentryMonitor initializes Sentry from cfg. Without a DSN it returns a
// NopMonitor so callers never need to branch. The environment falls back to
// APP_ENV, then "development".
func NewSentryMonitor(cfg config.SentryConfig, opts ...Option) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	env := cfg.Environment
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = "development"
	}
	co := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
	}
	for _, o := range opts {
		o(&co)
	}
	if err := sentry.Init(co); err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &sentryMonitor{hub: sentry.CurrentHub()}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) CapturePanic(v any, tags map[string]string) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.Recover(v)
	})
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
