package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Serve the first target and rebuild on change with hot updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			targets, _ := cmd.Flags().GetStringSlice("target")
			verbose, _ := cmd.Flags().GetBool("verbose")

			return c.app.Dev(cmd.Context(), app.DevOptions{
				Addr:    addr,
				Targets: targets,
				Verbose: verbose,
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address, overriding the configured one")
	cmd.Flags().StringSliceP("target", "t", nil, "Rebuild only the named targets; the first is served")
	cmd.Flags().BoolP("verbose", "v", false, "Log every decision")
	return cmd
}
