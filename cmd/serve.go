package main

import (
	"time"

	"github.com/spf13/cobra"

	"photoingest/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and enrichment workers",
		Example: `  # Start with config.yaml in the working directory
  photoingest serve

  # Override the listen address
  photoingest serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.ServerAddr = addr
			}

			srv := server.NewServer(a.cfg, a.orch, a.store, a.log.With("component", "http"))

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- srv.Start()
			}()

			select {
			case <-cmd.Context().Done():
				a.log.Info("shutting down")
			case err = <-serverErr:
				if err != nil {
					a.log.Error("http server failed", "error", err)
				}
			}

			ctx, cancel := shutdownContext(shutdownTimeout)
			defer cancel()
			if stopErr := srv.Stop(ctx); stopErr != nil {
				a.log.Error("http shutdown failed", "error", stopErr)
			}
			if closeErr := a.close(ctx); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server_addr)")
	return cmd
}
