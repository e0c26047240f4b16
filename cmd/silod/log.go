package main

import (
	"context"
	"fmt"

	"github.com/groblegark/ksilo/internal/client"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:     "log",
	Short:   "Query the event log (admin token required)",
	GroupID: "log",
}

var logEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List logged events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionKey, _ := cmd.Flags().GetString("session")
		silo, _ := cmd.Flags().GetString("silo")
		eventType, _ := cmd.Flags().GetString("type")
		all, _ := cmd.Flags().GetBool("all")

		filter := model.EventFilter{
			SessionKey: sessionKey,
			Silo:       silo,
			EventType:  eventType,
		}
		pager := client.NewEventPager(siloClient, filter)

		ctx := context.Background()
		window, more, err := pager.Next(ctx)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		// --all keeps doubling the window until the log is exhausted.
		for all && more {
			window, more, err = pager.Next(ctx)
			if err != nil {
				return fmt.Errorf("listing events: %w", err)
			}
		}

		if jsonOutput {
			printJSON(window)
			return nil
		}
		printEventTable(window)
		if more {
			fmt.Println("(more events available — rerun with --all)")
		}
		return nil
	},
}

var logSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions, most recently started first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := siloClient.GetSessions(context.Background())
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		if jsonOutput {
			printJSON(sess)
		} else {
			printSessionTable(sess)
		}
		return nil
	},
}

func init() {
	logEventsCmd.Flags().String("session", "", "filter by session key")
	logEventsCmd.Flags().String("silo", "", "filter by silo key")
	logEventsCmd.Flags().String("type", "", "filter by event type")
	logEventsCmd.Flags().Bool("all", false, "fetch the entire filtered log")

	logCmd.AddCommand(logEventsCmd)
	logCmd.AddCommand(logSessionsCmd)
}
