// Package timing holds the blocking waits shared by the supervisor and the
// alarm state machine.
//
// Waits go through the runtime timers only, so tests run them inside a
// testing/synctest bubble with fake time.
package timing

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
