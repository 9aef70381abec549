package hardware

import (
	"context"

	"github.com/oshokin/alarm-beacon/internal/logger"
)

// Output is a single binary output.
type Output interface {
	Set(on bool) error
}

// Driver drives the status indicator and the beacon relay.
// Output errors are logged and never stop the caller: the relay keeps
// running even if a pin write fails.
type Driver struct {
	// status is the ready/connecting indicator.
	status Output
	// beacon is the alarm relay.
	beacon Output
}

// NewDriver wires the two outputs.
func NewDriver(status, beacon Output) *Driver {
	return &Driver{
		status: status,
		beacon: beacon,
	}
}

// Ready turns the beacon off and the status indicator on.
func (d *Driver) Ready(ctx context.Context) {
	d.set(ctx, "beacon", d.beacon, false)
	d.set(ctx, "status", d.status, true)
}

// Alarm turns the status indicator off and the beacon on.
func (d *Driver) Alarm(ctx context.Context) {
	d.set(ctx, "status", d.status, false)
	d.set(ctx, "beacon", d.beacon, true)
}

// Off turns both outputs off. Used on shutdown.
func (d *Driver) Off(ctx context.Context) {
	d.set(ctx, "beacon", d.beacon, false)
	d.set(ctx, "status", d.status, false)
}

// Indicate sets the status indicator alone. Used for the connecting flash.
func (d *Driver) Indicate(ctx context.Context, on bool) {
	d.set(ctx, "status", d.status, on)
}

func (d *Driver) set(ctx context.Context, name string, out Output, on bool) {
	if err := out.Set(on); err != nil {
		logger.ErrorKV(ctx, "Failed to set output", "output", name, "on", on, "error", err)
	}
}
