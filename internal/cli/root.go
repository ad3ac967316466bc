// Package cli wires the solbeam commands: batch initialization, bulk
// transfer runs, confirmation passes, and read-only status and balance
// queries. Each command is a thin shell over the store and executor; all
// state lives in the batch state files.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the solbeam CLI.
func NewRootCmd(ver string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solbeam",
		Short: "Bulk SPL token transfers with a resumable state machine",
		Long: "solbeam transfers a token from one wallet to many recipients, tracking every\n" +
			"transfer in a durable, crash-safe batch file so runs can be interrupted and\n" +
			"resumed safely.",
		Version: ver,
		Example: rootCmdExample,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("env", "", "ledger environment from the config file (default from config)")
	cmd.AddCommand(
		NewInitCmd(), NewRunCmd(), NewConfirmCmd(), NewStatusCmd(),
		NewBalanceCmd(), newConfigCmd(),
	)

	return cmd
}

const rootCmdExample = `  # Create the batch state file for a transfer CSV
  solbeam init transfers.csv

  # Preview what a run would submit
  solbeam run transfers.csv --dry-run

  # Submit and confirm all outstanding transfers
  solbeam run transfers.csv

  # Submit without waiting for confirmations, confirm later
  solbeam run transfers.csv --skip-confirm
  solbeam confirm transfers.csv

  # Show per-record transfer status
  solbeam status transfers.csv

  # Show the sender wallet's token balance
  solbeam balance

  # Initialize configuration
  solbeam config init`

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd())
	return cmd
}
