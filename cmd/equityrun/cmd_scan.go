package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
	"github.com/sawpanic/equityrun/internal/domain"
)

func newScanCmd() *cobra.Command {
	var outPath string

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run scan passes",
	}

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single opportunity sweep and print candidates as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			coord, err := app.NewCoordinator(cfg, app.Options{Only: "opportunity"})
			if err != nil {
				return err
			}

			cands, err := coord.ScanOnce(cmd.Context())
			if err != nil {
				return err
			}
			if cands == nil {
				cands = []domain.Candidate{}
			}

			body, err := json.MarshalIndent(cands, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(body))

			if outPath != "" {
				if err := os.WriteFile(outPath, append(body, '\n'), 0o644); err != nil {
					return fmt.Errorf("write artifact %s: %w", outPath, err)
				}
				log.Info().Str("path", outPath).Int("candidates", len(cands)).Msg("Scan artifact written")
			}
			return nil
		},
	}
	onceCmd.Flags().StringVar(&outPath, "out", "", "Also write the candidate JSON to this file")

	scanCmd.AddCommand(onceCmd)
	return scanCmd
}
