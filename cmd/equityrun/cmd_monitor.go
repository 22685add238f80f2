package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
	"github.com/sawpanic/equityrun/internal/telemetry"
)

func newMonitorCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve /health and /metrics without starting the scanners",
		Long: `Starts the monitor HTTP server over an idle coordinator. Useful for
inspecting configuration, store contents and channel wiring without
generating any vendor traffic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Monitor.Addr = addr
			}
			coord, err := app.NewCoordinator(cfg, app.Options{})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := telemetry.NewServer(cfg.Monitor.Addr, coord.Health, telemetry.NewRegistry(coord.Stats))
			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()

			select {
			case err := <-errc:
				return fatalRuntimeError{err: err}
			case <-ctx.Done():
			}

			log.Info().Msg("Monitor shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override")
	return cmd
}
