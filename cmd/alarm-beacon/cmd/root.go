package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-beacon/internal/config"
	"github.com/oshokin/alarm-beacon/internal/service/relay"
	"github.com/oshokin/alarm-beacon/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides log_level from the configuration.
	logLevel string

	// rootCmd represents the base command for running the relay.
	rootCmd = &cobra.Command{
		Use:   "alarm-beacon",
		Short: "Turn a beacon on when a UDP datagram arrives.",
		Long: `Network-triggered alarm relay.

Keeps the device associated with one of the configured Wi-Fi networks and
watches a UDP port (112 by default). Any datagram switches the beacon on for
4 seconds; datagrams arriving right after an active period extend it, up to
5 periods in a row. Every episode is followed by a cooldown as long as the
time the beacon was on.

The status indicator is lit while the relay is ready, flashes while it is
connecting and goes dark while the beacon is on.

Runs until SIGINT or SIGTERM. Configuration errors exit with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			relayOptions := &relay.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
			}

			return relay.Run(ctx, relayOptions)
		},
	}
)

// Execute runs the alarm-beacon CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(checkCmd, initConfigCmd)
}
