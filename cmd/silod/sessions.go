package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "Manage open sessions",
	GroupID: "log",
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-key>",
	Short: "Close a session, stamping its end time from the last event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := siloClient.CloseSession(context.Background(), args[0]); err != nil {
			return fmt.Errorf("closing session: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": "closed", "key": args[0]})
		} else {
			fmt.Printf("Closed session %s\n", args[0])
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsCloseCmd)
}
