// Package journal keeps an append-only audit trail of command lifecycle
// events. It is never read back into the pending stores.
package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/logger"
)

// Query filters journal entries. Zero fields match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	CommandID string
	Phase     events.Phase
}

// Match reports whether ev satisfies q.
func (q Query) Match(ev events.CommandEvent) bool {
	if !q.Start.IsZero() && ev.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ev.Time.After(q.End) {
		return false
	}
	if q.VehicleID != "" && ev.VehicleID != q.VehicleID {
		return false
	}
	if q.CommandID != "" && ev.CommandID != q.CommandID {
		return false
	}
	if q.Phase != "" && ev.Phase != q.Phase {
		return false
	}
	return true
}

// Journal persists lifecycle events and supports querying.
type Journal interface {
	Append(ctx context.Context, ev events.CommandEvent) error
	Query(ctx context.Context, q Query) ([]events.CommandEvent, error)
	Close() error
}

// Config selects and tunes the journal backend.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendJSONL
	}
	if c.Path == "" {
		if c.Backend == BackendSQLite {
			c.Path = "commands.db"
		} else {
			c.Path = "commands.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 28
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Backend {
	case BackendJSONL, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("journal: unknown backend %q", c.Backend)
	}
}

// Open creates the configured backend.
func Open(cfg Config) (Journal, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return NewSQLiteJournal(cfg.Path)
	case BackendJSONL, "":
		return NewJSONLJournal(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", cfg.Backend)
	}
}

// Record appends every event received on ch until ch is closed or ctx ends.
func Record(ctx context.Context, j Journal, ch <-chan events.CommandEvent, log logger.Logger) {
	log = logger.OrNop(log)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Append(ctx, ev); err != nil {
				log.Errorf("journal append %s/%s: %v", ev.CommandID, ev.Phase, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func sortByTime(evs []events.CommandEvent) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time.Before(evs[j].Time) })
}
