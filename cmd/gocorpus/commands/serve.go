package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(global *GlobalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan control API over HTTP",
		Long: `Serve the scan control API over HTTP.

Endpoints:
  POST   /api/v1/scans               start a scan
  GET    /api/v1/scans/current       progress of the current or last scan
  DELETE /api/v1/scans/current       stop the current scan
  GET    /api/v1/repositories        corpus repositories
  POST   /api/v1/repositories/load   preload archives
  GET    /healthz, /readyz, /metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setupEnv(cmd, global, envOptions{mode: observability.ModeServe, prometheus: true})
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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

			srv := server.New(meta, cache, e.newScheduler(cache, nil),
				server.WithLogger(e.logger),
				server.WithTracer(e.providers.Tracer),
				server.WithREDMetrics(red),
				server.WithMetricsHandler(e.providers.MetricsHandler),
			)

			if addr == "" {
				addr = e.cfg.Server.Addr
			}

			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")

	return cmd
}
