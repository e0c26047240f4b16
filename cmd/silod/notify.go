package main

import (
	"context"
	"fmt"

	"github.com/groblegark/ksilo/internal/client"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:     "notify",
	Short:   "Trigger notifications",
	GroupID: "objects",
}

var notifyReplyCmd = &cobra.Command{
	Use:   "reply <silo> <instance> <parent-key> <reply-key>",
	Short: "Send a reply notification to a comment's author",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		structure, _ := cmd.Flags().GetString("structure")
		language, _ := cmd.Flags().GetString("language")

		req := &client.NotifyReplyRequest{
			Silo:      args[0],
			Structure: structure,
			Instance:  args[1],
			ParentKey: args[2],
			ReplyKey:  args[3],
			Language:  language,
		}
		if err := siloClient.NotifyReply(context.Background(), req); err != nil {
			return fmt.Errorf("sending reply notification: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": "sent"})
		} else {
			fmt.Println("Reply notification sent")
		}
		return nil
	},
}

func init() {
	notifyReplyCmd.Flags().String("structure", "", "structure key (default: simplecomments)")
	notifyReplyCmd.Flags().String("language", "", "template language (default: en)")

	notifyCmd.AddCommand(notifyReplyCmd)
}
