package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/alarm-beacon/internal/domain/alarm"
	"github.com/oshokin/alarm-beacon/internal/logger"
	"github.com/oshokin/alarm-beacon/internal/timing"
)

// Listener is the part of the datagram listener the controller depends on.
type Listener interface {
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
	Drain() (int, error)
}

// Outputs drives the indicator and the beacon.
type Outputs interface {
	Ready(ctx context.Context)
	Alarm(ctx context.Context)
}

// Observer is notified after every state change.
type Observer interface {
	AlarmChanged(ctx context.Context, state domain.State, session domain.Session)
}

// Options holds the timing of the state machine.
type Options struct {
	// Duration is the active time per trigger.
	Duration time.Duration
	// MaxQueue caps consecutive triggers per episode.
	MaxQueue int
	// Grace is the window after each active period that looks for a retrigger.
	Grace time.Duration
}

// DefaultOptions returns the stock timing: 4s per trigger, 5 triggers, 10ms grace.
func DefaultOptions() Options {
	return Options{
		Duration: domain.DefaultDuration,
		MaxQueue: domain.DefaultMaxQueue,
		Grace:    domain.DefaultGrace,
	}
}

// ErrNotIdle is returned when Trigger is called during an episode.
var ErrNotIdle = errors.New("alarm is not idle")

// Controller is the Idle -> Active -> Cooldown -> Idle state machine.
// It is driven from a single goroutine and is not safe for concurrent use.
type Controller struct {
	// listener reports and drains arrivals.
	listener Listener
	// outputs is switched on every transition.
	outputs Outputs
	// opts is the timing of the machine.
	opts Options
	// observers are told about every transition.
	observers []Observer
	// state is the current phase.
	state domain.State
}

// NewController creates an idle controller and puts the outputs in the ready
// position, so a fresh controller never starts with the beacon on.
func NewController(ctx context.Context, listener Listener, outputs Outputs, opts Options, observers ...Observer) *Controller {
	c := &Controller{
		listener:  listener,
		outputs:   outputs,
		opts:      opts,
		observers: observers,
		state:     domain.StateIdle,
	}

	outputs.Ready(ctx)

	return c
}

// State returns the current phase.
func (c *Controller) State() domain.State {
	return c.state
}

// Trigger runs one full episode for an arrival observed while idle and
// returns once the cooldown is over.
//
// Arrivals during cooldown are left in the socket buffer on purpose: the next
// Wait sees them and may start a new episode straight away.
//
// The only error is context cancellation (or ErrNotIdle); in that case the
// beacon is switched off before returning.
func (c *Controller) Trigger(ctx context.Context) (domain.Session, error) {
	if c.state != domain.StateIdle {
		return domain.Session{}, ErrNotIdle
	}

	session := domain.Session{ConsecutiveTriggers: 1}

	c.outputs.Alarm(ctx)
	c.transition(ctx, domain.StateActive, session)
	c.drain(ctx)

	logger.Info(ctx, "Alarm triggered")

	for {
		if err := timing.Sleep(ctx, c.opts.Duration); err != nil {
			return session, c.abort(ctx, session, err)
		}

		arrived, err := c.listener.Wait(ctx, c.opts.Grace)
		if err != nil {
			if ctx.Err() != nil {
				return session, c.abort(ctx, session, ctx.Err())
			}

			logger.ErrorKV(ctx, "Failed to check for queued triggers", "error", err)

			break
		}

		if !arrived {
			break
		}

		if session.ConsecutiveTriggers >= c.opts.MaxQueue {
			dropped := c.drain(ctx)
			logger.WarnKV(ctx, "Alarm queue is full, ignoring trigger",
				"consecutive_triggers", session.ConsecutiveTriggers, "dropped", dropped)

			break
		}

		c.drain(ctx)

		session.ConsecutiveTriggers++
		logger.InfoKV(ctx, "Queued up alarm", "consecutive_triggers", session.ConsecutiveTriggers)
		c.notify(ctx, domain.StateActive, session)
	}

	cooldown := session.Cooldown(c.opts.Duration)

	c.outputs.Ready(ctx)
	c.transition(ctx, domain.StateCooldown, session)
	logger.InfoKV(ctx, "Cooling down", "duration", cooldown)

	if err := timing.Sleep(ctx, cooldown); err != nil {
		return session, c.abort(ctx, session, err)
	}

	c.transition(ctx, domain.StateIdle, session)
	logger.Info(ctx, "Ready for more")

	return session, nil
}

// abort leaves the episode early, beacon off.
func (c *Controller) abort(ctx context.Context, session domain.Session, err error) error {
	// The caller's context is already done; outputs and observers only log with it.
	c.outputs.Ready(ctx)
	c.transition(ctx, domain.StateIdle, session)

	return fmt.Errorf("alarm episode aborted: %w", err)
}

// drain empties the socket buffer and returns how many datagrams were dropped.
func (c *Controller) drain(ctx context.Context) int {
	n, err := c.listener.Drain()
	if err != nil {
		logger.ErrorKV(ctx, "Failed to drain triggers", "error", err)
	}

	return n
}

func (c *Controller) transition(ctx context.Context, state domain.State, session domain.Session) {
	c.state = state
	c.notify(ctx, state, session)
}

func (c *Controller) notify(ctx context.Context, state domain.State, session domain.Session) {
	for _, o := range c.observers {
		o.AlarmChanged(ctx, state, session)
	}
}
