// Package link implements the connectivity supervisor.
//
// The Supervisor cycles through the known profiles, asking the Radio to
// associate and polling it once per tick with a visual heartbeat. Each failed
// pass over all profiles raises the per-profile patience by 5 ticks, from 10
// up to 30; retries never stop. Alive is the liveness check used by the main
// loop to detect link loss.
package link
