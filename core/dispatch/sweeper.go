package dispatch

import (
	"context"
	"time"

	"github.com/kilianp07/fleetcmd/core/events"
)

// Sweep removes pending commands whose command token has expired and returns
// how many were removed. An expired token can no longer be verified by the
// vehicle, so such records would otherwise only leave the store on disconnect.
func (d *Dispatcher) Sweep(now time.Time) int {
	removed := 0
	for _, s := range d.registry.List() {
		for _, rec := range s.Pending.RemoveExpired(now) {
			d.resolve(s.ID, rec, events.PhaseExpired, "")
			removed++
		}
	}
	if removed > 0 {
		d.logger.Infof("expiry sweep removed %d commands", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is canceled. A non-positive
// interval returns immediately.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Sweep(d.now())
		case <-ctx.Done():
			return
		}
	}
}
