package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-beacon/internal/config"
)

var (
	// force allows overwriting an existing configuration file.
	force bool
	// hardwareDriver selects the output driver written to the file.
	hardwareDriver string

	// errConfigExists is returned when init-config would overwrite a file without --force.
	errConfigExists = errors.New("configuration file already exists, use --force to overwrite")

	// initConfigCmd writes a starter configuration.
	initConfigCmd = &cobra.Command{
		Use:   "init-config SSID [PSK]",
		Short: "Write a starter configuration file.",
		Long: `Writes a configuration with one network and default settings to the --config path.

More networks can be added to the networks list afterwards; they are tried in order.
The file holds pre-shared keys and is created readable by its owner only.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%w: %s", errConfigExists, configPath)
			}

			network := config.Network{SSID: args[0]}
			if len(args) > 1 {
				network.PSK = args[1]
			}

			cfg := &config.Config{
				Networks: []config.Network{network},
				Hardware: config.Hardware{Driver: hardwareDriver},
			}

			if err := config.Save(configPath, cfg); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", configPath)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initConfigCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	initConfigCmd.Flags().StringVar(&hardwareDriver, "hardware", config.HardwareDriverGPIO, "output driver (gpio or log)")
}
