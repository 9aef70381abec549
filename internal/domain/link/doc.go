// Package link contains the domain types of network connectivity:
// the Profile of a known network and the State variant reported by the
// connectivity supervisor.
package link
