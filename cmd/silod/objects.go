package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/groblegark/ksilo/internal/client"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/spf13/cobra"
)

var objectsCmd = &cobra.Command{
	Use:     "objects",
	Short:   "Read and write documents in the hierarchical store",
	GroupID: "objects",
}

var objectsSetCmd = &cobra.Command{
	Use:   "set <silo> <structure> <instance> <type> <key>",
	Short: "Write a document (last write wins)",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetString("value")
		var raw json.RawMessage
		if value == "-" || value == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading value from stdin: %w", err)
			}
			raw = data
		} else {
			raw = json.RawMessage(value)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("value is not valid JSON")
		}

		req := &client.SetObjectRequest{
			Silo:      args[0],
			Structure: args[1],
			Instance:  args[2],
			Type:      args[3],
			Key:       args[4],
			Value:     raw,
		}
		if err := siloClient.SetObject(context.Background(), req); err != nil {
			return fmt.Errorf("setting object: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": "ok", "key": args[4]})
		} else {
			fmt.Printf("Wrote %s/%s/%s/%s/%s\n", args[0], args[1], args[2], args[3], args[4])
		}
		return nil
	},
}

var objectsGetCmd = &cobra.Command{
	Use:   "get <silo> <structure> <instance> <type> <key>",
	Short: "Fetch a single document",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := siloClient.GetObject(context.Background(), model.ObjectRef{
			Silo:      args[0],
			Structure: args[1],
			Instance:  args[2],
			Type:      args[3],
			Key:       args[4],
		})
		if err != nil {
			return fmt.Errorf("getting object: %w", err)
		}

		if jsonOutput {
			printJSON(obj)
		} else {
			printObjectTable(obj)
		}
		return nil
	},
}

var objectsListCmd = &cobra.Command{
	Use:   "list <silo> <structure> <instance> <type>",
	Short: "List all documents of a type under an instance",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		objects, err := siloClient.ListObjects(context.Background(), args[0], args[1], args[2], args[3])
		if err != nil {
			return fmt.Errorf("listing objects: %w", err)
		}

		if jsonOutput {
			printJSON(objects)
		} else {
			printObjectListTable(objects)
		}
		return nil
	},
}

func init() {
	objectsSetCmd.Flags().StringP("value", "v", "", "document value as JSON (\"-\" or empty reads stdin)")

	objectsCmd.AddCommand(objectsSetCmd)
	objectsCmd.AddCommand(objectsGetCmd)
	objectsCmd.AddCommand(objectsListCmd)
}
