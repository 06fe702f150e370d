package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/pkg/version"
)

// NewRootCommand assembles the gocorpus command tree.
func NewRootCommand() *cobra.Command {
	global := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "gocorpus",
		Short: "Structural search over a corpus of Go repositories",
		Long: `gocorpus runs tree-sitter queries over a prebuilt corpus of Go
repositories and reports how often each match occurs.

Commands:
  scan      run a query and print the most frequent matches
  list      list corpus repositories
  serve     HTTP control API
  mcp       MCP stdio server
  build     build corpus archives from a repository list`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&global.ConfigPath, "config", "c", "", "config file (default .gocorpus.yaml in . or $HOME)")
	root.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&global.Quiet, "quiet", "q", false, "suppress output")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		NewScanCommand(global),
		NewListCommand(global),
		NewServeCommand(global),
		NewMCPCommand(global),
		NewBuildCommand(global),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
