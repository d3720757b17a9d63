package device

import (
	"context"
	"time"
)

// Delay returns an Applier that simulates a command taking d to apply.
func Delay(d time.Duration) Applier {
	return ApplierFunc(func(ctx context.Context, _ Command) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
