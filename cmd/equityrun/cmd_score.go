package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
)

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <symbol>",
		Short: "Compute and print the monthly score for one symbol as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			coord, err := app.NewCoordinator(cfg, app.Options{})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			ms, err := coord.Score(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ms)
		},
	}
}
