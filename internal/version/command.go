package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
// With --short only the semantic version is printed, which suits deployment scripts.
func AttachCobraVersionCommand(root *cobra.Command) {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print the version of the relay with the commit hash and build timestamp injected at build time.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), Short())

				return
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print the semantic version only")

	root.AddCommand(cmd)
}
