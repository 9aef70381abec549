// Package checker implements the `check` subcommand: a one-shot probe of a
// running relay's gRPC health endpoint, suitable for systemd or cron.
package checker
