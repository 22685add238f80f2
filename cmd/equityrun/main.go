package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/equityrun/internal/domain"
)

const (
	appName = "equityrun"
	version = "v1.0.0"
)

// Exit codes per the CLI contract.
const (
	exitOK      = 0
	exitError   = 1
	exitConfig  = 2
	exitRuntime = 3
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Equity opportunity scanner and alerting pipeline",
		Version: version,
		Long: `EquityRun watches a ticker watchlist for premarket catalysts, intraday
pumps and longer-horizon opportunities, scores them on a 0-100 composite
signal, and dispatches prioritized alerts over Telegram, email, desktop and
audio channels.

Running with no subcommand starts the full pipeline.`,
		RunE:          runRun,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML")

	rootCmd.AddCommand(
		newRunCmd(),
		newScoreCmd(),
		newScanCmd(),
		newAlertsCmd(),
		newHealthCmd(),
		newMonitorCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCodeFor(err))
	}
}

// fatalRuntimeError marks failures that happen after a clean start.
type fatalRuntimeError struct{ err error }

func (e fatalRuntimeError) Error() string { return e.err.Error() }
func (e fatalRuntimeError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if errors.Is(err, domain.ErrConfigInvalid) {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfig
	}
	var fatal fatalRuntimeError
	if errors.As(err, &fatal) {
		return exitRuntime
	}
	return exitError
}
