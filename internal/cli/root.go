// Package cli provides the command-line interface for spacefeed.
package cli

import (
	"github.com/spacefeed/spacefeed/internal/client"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var (
	serverURL  string
	configPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "spacefeed",
	Short: "CSV-to-document-store ingestion service",
	Long: `Spacefeed ingests CSV files staged in an S3-compatible bucket into a
document store, deduplicating records by url_id.

Run the ingestion server with 'spacefeed serve', then control it with
'spacefeed start', 'spacefeed stop', 'spacefeed stats' and 'spacefeed watch'.`,
	Version: Version,
}

// apiClient builds the control API client from the --server flag.
func apiClient() *client.Client {
	return client.New(serverURL)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "control API base URL (default $SPACEFEED_SERVER_URL or http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to optional YAML config file")
}
