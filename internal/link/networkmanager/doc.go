// Package networkmanager implements the link Radio on top of NetworkManager's
// D-Bus API: connections are activated as volatile profiles and the device
// state and IPv4 configuration are read back as properties.
package networkmanager
