package link

import (
	"fmt"
	"net/netip"
)

// Profile is a network the device may associate with.
type Profile struct {
	// SSID is the network name.
	SSID string
	// PSK is the pre-shared key. Empty means an open network.
	PSK string
}

// String returns the SSID so that keys never end up in logs.
func (p Profile) String() string {
	return p.SSID
}

// Phase is the coarse link status.
type Phase int

const (
	// PhaseDisconnected means no association is in progress.
	PhaseDisconnected Phase = iota
	// PhaseConnecting means a profile is being tried.
	PhaseConnecting
	// PhaseConnected means the device holds a local address.
	PhaseConnected
)

// String returns the lower-case name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is the link state owned by the connectivity supervisor.
// Which fields are meaningful depends on Phase.
type State struct {
	// Phase selects the variant.
	Phase Phase
	// Profile is the network being tried or held.
	Profile Profile
	// Attempts counts the polls spent on Profile so far (connecting only).
	// It is 0 while the association is being requested.
	Attempts int
	// Patience is the poll budget of the current pass (connecting only).
	Patience int
	// Address is the acquired local address (connected only).
	Address netip.Addr
}

// Disconnected returns the initial state.
func Disconnected() State {
	return State{Phase: PhaseDisconnected}
}

// Connecting returns the state of an association attempt in progress.
func Connecting(profile Profile, attempts, patience int) State {
	return State{
		Phase:    PhaseConnecting,
		Profile:  profile,
		Attempts: attempts,
		Patience: patience,
	}
}

// Connected returns the state of an established link.
func Connected(profile Profile, address netip.Addr) State {
	return State{
		Phase:   PhaseConnected,
		Profile: profile,
		Address: address,
	}
}

// String renders the state for logs.
func (s State) String() string {
	switch s.Phase {
	case PhaseConnecting:
		return fmt.Sprintf("connecting(%s, %d/%d)", s.Profile.SSID, s.Attempts, s.Patience)
	case PhaseConnected:
		return fmt.Sprintf("connected(%s, %s)", s.Profile.SSID, s.Address)
	default:
		return s.Phase.String()
	}
}
