package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the artifact cache and build outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outputs, _ := cmd.Flags().GetBool("outputs")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.CleanOptions{}
			switch {
			case all:
				opts.Cache = true
				opts.Outputs = true
			case outputs:
				opts.Outputs = true
			default:
				// Default behavior: clean the artifact cache
				opts.Cache = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolP("outputs", "o", false, "Clean the output directories of every target")
	cmd.Flags().BoolP("all", "a", false, "Clean the artifact cache and every output directory")

	return cmd
}
