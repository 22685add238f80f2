package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
	"github.com/sawpanic/equityrun/internal/telemetry"
)

// drainTimeout bounds graceful shutdown after SIGINT/SIGTERM.
const drainTimeout = 10 * time.Second

var (
	flagAggressive      bool
	flagPremarketOnly   bool
	flagIntradayOnly    bool
	flagOpportunityOnly bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the full scanning and alerting pipeline",
		RunE:  runRun,
	}
	cmd.Flags().BoolVar(&flagAggressive, "aggressive", false, "Shorter intervals and looser momentum thresholds")
	cmd.Flags().BoolVar(&flagPremarketOnly, "premarket-only", false, "Run only the premarket catalyst scanner")
	cmd.Flags().BoolVar(&flagIntradayOnly, "intraday-only", false, "Run only the intraday pump scanner")
	cmd.Flags().BoolVar(&flagOpportunityOnly, "opportunity-only", false, "Run only the opportunity sweep")
	return cmd
}

func scannerSelection() (string, error) {
	selected := ""
	n := 0
	for flag, name := range map[*bool]string{
		&flagPremarketOnly:   "premarket",
		&flagIntradayOnly:    "intraday",
		&flagOpportunityOnly: "opportunity",
	} {
		if *flag {
			selected = name
			n++
		}
	}
	if n > 1 {
		return "", fmt.Errorf("at most one of --premarket-only, --intraday-only, --opportunity-only may be set")
	}
	return selected, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	only, err := scannerSelection()
	if err != nil {
		return err
	}

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	coord, err := app.NewCoordinator(cfg, app.Options{Aggressive: flagAggressive, Only: only})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return err
	}

	monitor := telemetry.NewServer(cfg.Monitor.Addr, coord.Health, telemetry.NewRegistry(coord.Stats))
	monitorErr := make(chan error, 1)
	go func() { monitorErr <- monitor.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, draining")
	case err := <-monitorErr:
		coord.Stop()
		return fatalRuntimeError{err: fmt.Errorf("monitor server: %w", err)}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		coord.Stop()
		_ = monitor.Shutdown(drainCtx)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-drainCtx.Done():
		return fatalRuntimeError{err: fmt.Errorf("drain exceeded %s", drainTimeout)}
	}
}
