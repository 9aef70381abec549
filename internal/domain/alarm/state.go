package alarm

import "time"

const (
	// DefaultDuration is how long the beacon stays on per trigger.
	DefaultDuration = 4 * time.Second
	// DefaultMaxQueue caps the number of consecutive triggers in one episode.
	DefaultMaxQueue = 5
	// DefaultGrace is the window after each active period in which a new
	// arrival extends the episode.
	DefaultGrace = 10 * time.Millisecond
)

// State is the phase of the alarm state machine.
type State int

const (
	// StateIdle waits for a trigger with the beacon off.
	StateIdle State = iota
	// StateActive keeps the beacon on.
	StateActive
	// StateCooldown keeps the beacon off until the duty cycle is restored.
	StateCooldown
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Session describes one alarm episode, from activation to the end of cooldown.
type Session struct {
	// ConsecutiveTriggers counts the active periods of the episode, 1..max queue.
	ConsecutiveTriggers int
}

// ActiveTime is the total time the beacon was on during the session.
func (s Session) ActiveTime(duration time.Duration) time.Duration {
	return time.Duration(s.ConsecutiveTriggers) * duration
}

// Cooldown is the forced off time following the session.
// It equals the active time, which bounds the duty cycle at 50%.
func (s Session) Cooldown(duration time.Duration) time.Duration {
	return s.ActiveTime(duration)
}
