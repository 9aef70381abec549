package relay

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	domain "github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
	"github.com/oshokin/alarm-beacon/internal/service/alarm"
)

// Listener is a bound trigger socket.
type Listener interface {
	alarm.Listener
	Addr() netip.AddrPort
	Close() error
}

// ListenFunc binds a Listener to the acquired local address.
type ListenFunc func(ctx context.Context, address netip.Addr, port int) (Listener, error)

// Outputs is what the relay drives: the alarm outputs plus the shutdown state.
type Outputs interface {
	alarm.Outputs
	Off(ctx context.Context)
}

// Settings holds the relay timing and socket parameters.
type Settings struct {
	// Port is the UDP port watched for triggers.
	Port int
	// PollTimeout bounds each wait for a datagram.
	PollTimeout time.Duration
	// Alarm is the timing of the beacon state machine.
	Alarm alarm.Options
}

// Relay is the main loop: connect, listen, trigger, and reconnect on link loss.
type Relay struct {
	supervisor *link.Supervisor
	outputs    Outputs
	listen     ListenFunc
	settings   Settings
	observers  []alarm.Observer
}

// New wires a relay. observers receive every alarm transition.
func New(
	supervisor *link.Supervisor,
	outputs Outputs,
	listen ListenFunc,
	settings Settings,
	observers ...alarm.Observer,
) *Relay {
	return &Relay{
		supervisor: supervisor,
		outputs:    outputs,
		listen:     listen,
		settings:   settings,
		observers:  observers,
	}
}

// Run cycles between connecting and serving until ctx is canceled, which is
// a clean shutdown and returns nil. Any other error is fatal: it comes from
// the trigger socket and the process is expected to be restarted.
func (r *Relay) Run(ctx context.Context, profiles []domain.Profile) error {
	defer r.outputs.Off(context.WithoutCancel(ctx))

	for {
		address, err := r.supervisor.Connect(ctx, profiles)
		if err != nil {
			return shutdown(ctx, err)
		}

		err = r.serve(ctx, address)
		if err != nil {
			return shutdown(ctx, err)
		}

		logger.Warn(ctx, "Link lost, reconnecting")
	}
}

// serve listens on address until the link is lost. It returns nil on link loss.
func (r *Relay) serve(ctx context.Context, address netip.Addr) error {
	lis, err := r.listen(ctx, address, r.settings.Port)
	if err != nil {
		return fmt.Errorf("bind trigger socket: %w", err)
	}

	defer func() {
		if err := lis.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close trigger socket", "error", err)
		}
	}()

	controller := alarm.NewController(ctx, lis, r.outputs, r.settings.Alarm, r.observers...)

	logger.InfoKV(ctx, "Waiting for triggers", "address", lis.Addr().String())

	for {
		if !r.supervisor.Alive(ctx) {
			return nil
		}

		arrived, err := lis.Wait(ctx, r.settings.PollTimeout)
		if err != nil {
			return fmt.Errorf("wait for trigger: %w", err)
		}

		if !arrived {
			continue
		}

		if _, err = controller.Trigger(ctx); err != nil {
			return err
		}
	}
}

// shutdown maps a canceled context to a clean exit.
func shutdown(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Info(ctx, "Relay stopped")

		return nil
	}

	return err
}
