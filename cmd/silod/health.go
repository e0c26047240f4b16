package main

import (
	"context"
	"fmt"

	"github.com/groblegark/ksilo/internal/ui"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the silo service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := siloClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": status})
		} else {
			style := ui.Open
			if status != "ok" {
				style = ui.Alert
			}
			fmt.Printf("Health: %s\n", style.Render(status))
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
