package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-beacon/internal/service/checker"
	"github.com/oshokin/alarm-beacon/internal/service/common"
)

var (
	// checkTimeout is the per-RPC timeout of the probe.
	checkTimeout time.Duration

	// checkCmd probes a running relay.
	checkCmd = &cobra.Command{
		Use:   "check [health-address]",
		Short: "Probe the health endpoint of a running relay.",
		Long: `Queries the gRPC health service of a running relay and prints the response as JSON.

Exits with status 0 while the relay holds a network link and 1 otherwise,
which makes it usable as a systemd or container health check.
The address defaults to health_address of the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var address string
			if len(args) > 0 {
				address = args[0]
			}

			checkerOptions := &checker.Options{
				ConfigPath: configPath,
				Address:    address,
				Timeout:    checkTimeout,
				Output:     cmd.OutOrStdout(),
			}

			return checker.Run(ctx, checkerOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().DurationVarP(&checkTimeout, "timeout", "t", common.DefaultCallTimeout, "timeout of the health call")
}
