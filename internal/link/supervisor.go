package link

import (
	"context"
	"errors"
	"net/netip"
	"time"

	domain "github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
	"github.com/oshokin/alarm-beacon/internal/timing"
)

const (
	// InitialPatience is the poll budget per profile on the first pass.
	InitialPatience = 10
	// PatienceStep is added after every failed pass over all profiles.
	PatienceStep = 5
	// MaxPatience caps the poll budget.
	MaxPatience = 30

	// DefaultTick is the time per association poll.
	DefaultTick = time.Second
	// DefaultFlash is how long the indicator stays on during each tick.
	DefaultFlash = 250 * time.Millisecond
)

// ErrNoProfiles is returned by Connect when there is nothing to try.
var ErrNoProfiles = errors.New("no network profiles")

// Status is what the radio reports about its association.
type Status struct {
	// Associated is true once the radio has joined a network.
	Associated bool
	// Address is the acquired local address, invalid until configured.
	Address netip.Addr
}

// Up reports whether the link is usable: associated and addressed.
func (s Status) Up() bool {
	return s.Associated && s.Address.IsValid()
}

// Radio is the network link handle.
type Radio interface {
	// Reset drops any previous association.
	Reset(ctx context.Context) error
	// Associate requests association with profile. It does not wait for the result.
	Associate(ctx context.Context, profile domain.Profile) error
	// Status reports the current association.
	Status(ctx context.Context) (Status, error)
}

// Indicator is flashed while the supervisor waits.
type Indicator interface {
	Indicate(ctx context.Context, on bool)
}

// Observer is notified after every link state change.
type Observer interface {
	LinkChanged(ctx context.Context, state domain.State)
}

// Option configures the supervisor.
type Option func(*Supervisor)

// WithTick overrides the poll period and the on-part of the flash.
func WithTick(tick, flash time.Duration) Option {
	return func(s *Supervisor) {
		if tick > 0 && flash >= 0 && flash <= tick {
			s.tick = tick
			s.flash = flash
		}
	}
}

// WithObservers registers observers for link state changes.
func WithObservers(observers ...Observer) Option {
	return func(s *Supervisor) {
		s.observers = append(s.observers, observers...)
	}
}

// Supervisor keeps the device associated to one of the known networks.
// It is driven from a single goroutine and is not safe for concurrent use.
type Supervisor struct {
	// radio is the network link handle.
	radio Radio
	// indicator flashes on every poll tick.
	indicator Indicator
	// tick is the time per poll.
	tick time.Duration
	// flash is the on-part of each tick.
	flash time.Duration
	// observers are told about every state change.
	observers []Observer
	// state is the current link state.
	state domain.State
}

// NewSupervisor creates a disconnected supervisor.
func NewSupervisor(radio Radio, indicator Indicator, opts ...Option) *Supervisor {
	s := &Supervisor{
		radio:     radio,
		indicator: indicator,
		tick:      DefaultTick,
		flash:     DefaultFlash,
		state:     domain.Disconnected(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State returns the current link state.
func (s *Supervisor) State() domain.State {
	return s.state
}

// NextPatience returns the poll budget for the pass after a failed one.
func NextPatience(patience int) int {
	return min(patience+PatienceStep, MaxPatience)
}

// Connect blocks until one of profiles is associated and returns the local
// address. Profiles are tried in order; every failed pass raises the
// per-profile patience up to MaxPatience and starts over. It never gives up;
// the only errors are ErrNoProfiles and context cancellation.
func (s *Supervisor) Connect(ctx context.Context, profiles []domain.Profile) (netip.Addr, error) {
	if len(profiles) == 0 {
		return netip.Addr{}, ErrNoProfiles
	}

	if err := s.radio.Reset(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to reset radio", "error", err)
	}

	for patience := InitialPatience; ; patience = NextPatience(patience) {
		for _, profile := range profiles {
			address, ok, err := s.attempt(ctx, profile, patience)
			if err != nil {
				s.setState(ctx, domain.Disconnected())

				return netip.Addr{}, err
			}

			if ok {
				return address, nil
			}
		}

		logger.WarnKV(ctx, "No network reachable, retrying",
			"patience", patience, "next_patience", NextPatience(patience))
	}
}

// attempt asks for association with profile and polls up to patience ticks.
// ok is false when the profile did not come up in time.
func (s *Supervisor) attempt(ctx context.Context, profile domain.Profile, patience int) (netip.Addr, bool, error) {
	logger.InfoKV(ctx, "Attempting connection", "ssid", profile.SSID, "patience", patience)

	s.setState(ctx, domain.Connecting(profile, 0, patience))

	if err := s.radio.Associate(ctx, profile); err != nil {
		if ctx.Err() != nil {
			return netip.Addr{}, false, ctx.Err()
		}

		logger.WarnKV(ctx, "Association request failed", "ssid", profile.SSID, "error", err)
	}

	for attempt := 1; attempt <= patience; attempt++ {
		if err := s.heartbeat(ctx); err != nil {
			return netip.Addr{}, false, err
		}

		s.setState(ctx, domain.Connecting(profile, attempt, patience))

		status, err := s.radio.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return netip.Addr{}, false, ctx.Err()
			}

			logger.DebugKV(ctx, "Failed to read link status", "error", err)

			continue
		}

		if status.Up() {
			logger.InfoKV(ctx, "Connected", "ssid", profile.SSID, "address", status.Address.String())
			s.setState(ctx, domain.Connected(profile, status.Address))

			return status.Address, true, nil
		}
	}

	return netip.Addr{}, false, nil
}

// heartbeat flashes the indicator for one tick.
func (s *Supervisor) heartbeat(ctx context.Context) error {
	s.indicator.Indicate(ctx, true)

	if err := timing.Sleep(ctx, s.flash); err != nil {
		return err
	}

	s.indicator.Indicate(ctx, false)

	return timing.Sleep(ctx, s.tick-s.flash)
}

// Alive reports whether the link is still up. A status error counts as
// link loss. On loss the state moves to disconnected.
func (s *Supervisor) Alive(ctx context.Context) bool {
	status, err := s.radio.Status(ctx)
	if err == nil && status.Up() {
		return true
	}

	if err != nil {
		logger.WarnKV(ctx, "Failed to read link status", "error", err)
	}

	if s.state.Phase == domain.PhaseDisconnected {
		return false
	}

	logger.WarnKV(ctx, "Link lost", "ssid", s.state.Profile.SSID)
	s.setState(ctx, domain.Disconnected())

	return false
}

func (s *Supervisor) setState(ctx context.Context, state domain.State) {
	s.state = state

	for _, o := range s.observers {
		o.LinkChanged(ctx, state)
	}
}
