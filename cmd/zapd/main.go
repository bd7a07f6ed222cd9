package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/not-mt/zapd/cmd/zapd/commands"
	"github.com/not-mt/zapd/logger"
)

var rootCmd = &cobra.Command{
	Use:   "zapd",
	Short: "zapd - Resource service with an async zap engine",
	Long: `zapd - HTTP resource service with asynchronous zap processing.

zapd serves widget and gadget resources over a JSON API and runs the
surge engine: zap requests are queued as durable tasks, claimed by a
worker pool, retried with backoff, and streamed live over WebSocket.

Available commands:
  serve   - Start the HTTP server and surge worker pool
  db      - Manage the zapd database (migrate, seed)
  keygen  - Generate an API key for the auth config
  config  - Inspect the effective configuration
  version - Show build information

Examples:
  zapd serve                       # Start the server
  zapd db migrate                  # Apply pending migrations and exit
  zapd db seed --file seeds.toml   # Load widget/gadget fixtures
  zapd keygen --name ci-bot        # Mint an API key
  zapd config show --format json   # Render the merged configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize the global logger before any command runs. Commands
		// whose stdout must stay clean (config show) still log to stderr
		// at warn and above only.
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetLevel(logger.VerbosityToLevel(verbosity))
		return nil
	},
}

func init() {
	// Initialize logger early so flag parsing failures are still reported
	if err := logger.Initialize(false); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (skips the standard search)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON where supported")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	// Commands
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.KeygenCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
