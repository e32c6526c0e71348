package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobhub-dev/jobhub/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr        string
		verbose     bool
		driver      string
		maintenance bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub HTTP service",
		Long: `Run the backend-for-frontend service: per-session wizard drafts and
overlays, cached marketplace reads, the endpoint-test proxy and the
/admin control plane. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("verbose") {
				cfg.Server.Verbose = verbose
			}
			if cmd.Flags().Changed("storage") {
				cfg.Storage.Driver = driver
			}
			if cmd.Flags().Changed("maintenance") {
				cfg.Maintenance.Enabled = maintenance
			}

			hub, err := server.New(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return hub.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&driver, "storage", "", "session storage driver: memory, redis or noop")
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "start in maintenance mode")
	return cmd
}
