package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/internal/mcp"
	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

Tools:
  - gocorpus_list_repositories: corpus repositories with tags and size
  - gocorpus_scan: structural query over selected repositories`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Stdout carries the protocol; logs go to stderr only.
			e, err := setupEnv(cmd, global, envOptions{mode: observability.ModeMCP})
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()

			meta, err := e.loadMeta(ctx)
			if err != nil {
				return err
			}

			cache, err := e.newCache()
			if err != nil {
				return err
			}

			red, err := observability.NewREDMetrics(e.providers.Meter)
			if err != nil {
				return fmt.Errorf("init request metrics: %w", err)
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Meta:      meta,
				Cache:     cache,
				Scheduler: e.newScheduler(cache, nil),
				Version:   version.Version,
				Logger:    e.logger,
				Metrics:   red,
				Tracer:    e.providers.Tracer,
			})

			return srv.Run(ctx)
		},
	}
}
