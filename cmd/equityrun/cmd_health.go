package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/app"
)

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running instance's health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := app.LoadConfig(configPath)
				if err != nil {
					return err
				}
				addr = cfg.Monitor.Addr
			}
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
			if err != nil {
				return fmt.Errorf("health endpoint unreachable: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, string(body))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Monitor address (defaults to the configured monitor.addr)")
	return cmd
}
