package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
	"github.com/sawpanic/equityrun/internal/domain"
)

func newAlertsCmd() *cobra.Command {
	var since time.Duration

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect dispatched alerts",
	}

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Print alerts created within the window as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			coord, err := app.NewCoordinator(cfg, app.Options{})
			if err != nil {
				return err
			}

			rows, err := coord.RecentAlerts(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []domain.Alert{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
	recentCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Lookback window, e.g. 30m or 6h")

	alertsCmd.AddCommand(recentCmd)
	return alertsCmd
}
