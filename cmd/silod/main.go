package main

import (
	"os"

	"github.com/groblegark/ksilo/internal/client"
	"github.com/groblegark/ksilo/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	authToken  string
	adminToken string
	jsonOutput bool

	siloClient client.SiloClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("SILO_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("SILO_AUTH_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

func defaultAdminToken() string {
	if s := os.Getenv("SILO_ADMIN_TOKEN"); s != "" {
		return s
	}
	return activeRemoteAdminToken()
}

var rootCmd = &cobra.Command{
	Use:   "silod <command>",
	Short: "Multi-tenant document store with write-triggered derived views",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		siloClient = client.NewHTTPClient(httpURL, authToken, adminToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if siloClient != nil {
			siloClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for API access")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", defaultAdminToken(), "admin token for the log read surface")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "objects", Title: "Objects:"},
		&cobra.Group{ID: "log", Title: "Event log:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Objects
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(notifyCmd)

	// Event log
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(sessionsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
