package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build every configured target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, _ := cmd.Flags().GetStringSlice("target")
			noCache, _ := cmd.Flags().GetBool("no-cache")
			asJSON, _ := cmd.Flags().GetBool("json")
			verbose, _ := cmd.Flags().GetBool("verbose")

			return c.app.Build(cmd.Context(), app.BuildOptions{
				Targets: targets,
				NoCache: noCache,
				JSON:    asJSON,
				Verbose: verbose,
			})
		},
	}
	cmd.Flags().StringSliceP("target", "t", nil, "Build only the named targets")
	cmd.Flags().BoolP("no-cache", "n", false, "Bypass the artifact cache and rebuild everything")
	cmd.Flags().Bool("json", false, "Print the build report as JSON")
	cmd.Flags().BoolP("verbose", "v", false, "Log every decision and trace every stage")
	return cmd
}
