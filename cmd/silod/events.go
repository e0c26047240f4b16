package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/groblegark/ksilo/internal/idgen"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Append activity events",
	GroupID: "log",
}

var eventsAppendCmd = &cobra.Command{
	Use:   "append <event-type>",
	Short: "Append an event to the log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionKey, _ := cmd.Flags().GetString("session")
		newSession, _ := cmd.Flags().GetBool("new-session")
		silo, _ := cmd.Flags().GetString("silo")
		structure, _ := cmd.Flags().GetString("structure")
		instance, _ := cmd.Flags().GetString("instance")
		userID, _ := cmd.Flags().GetString("user")
		userName, _ := cmd.Flags().GetString("user-name")
		extra, _ := cmd.Flags().GetString("extra")

		if newSession {
			if sessionKey != "" {
				return fmt.Errorf("--session and --new-session are mutually exclusive")
			}
			var err error
			if sessionKey, err = idgen.NewSessionKey(); err != nil {
				return fmt.Errorf("generating session key: %w", err)
			}
		}

		e := &model.Event{
			EventType:  args[0],
			SessionKey: sessionKey,
			Silo:       silo,
			Structure:  structure,
			Instance:   instance,
			UserID:     userID,
			UserName:   userName,
		}
		if extra != "" {
			if !json.Valid([]byte(extra)) {
				return fmt.Errorf("--extra is not valid JSON")
			}
			e.Extra = json.RawMessage(extra)
		}

		key, err := siloClient.AppendEvent(context.Background(), e)
		if err != nil {
			return fmt.Errorf("appending event: %w", err)
		}

		if jsonOutput {
			out := map[string]string{"key": key}
			if newSession {
				out["sessionKey"] = sessionKey
			}
			printJSON(out)
		} else {
			fmt.Printf("Appended event %s\n", key)
			if newSession {
				fmt.Printf("Started session %s\n", sessionKey)
			}
		}
		return nil
	},
}

func init() {
	eventsAppendCmd.Flags().String("session", "", "session key the event belongs to")
	eventsAppendCmd.Flags().Bool("new-session", false, "generate a fresh session key for this event")
	eventsAppendCmd.Flags().String("silo", "", "silo (tenant) key")
	eventsAppendCmd.Flags().String("structure", "", "structure key")
	eventsAppendCmd.Flags().String("instance", "", "instance key")
	eventsAppendCmd.Flags().String("user", "", "user id")
	eventsAppendCmd.Flags().String("user-name", "", "user display name")
	eventsAppendCmd.Flags().String("extra", "", "extra payload as JSON")

	eventsCmd.AddCommand(eventsAppendCmd)
}
