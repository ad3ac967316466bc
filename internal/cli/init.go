package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/batch"
	"github.com/solbeam/solbeam/internal/store"
)

// NewInitCmd creates the init command: it parses a transfer CSV and persists
// the initial batch state file. Running init twice against the same input is
// a safe no-op.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <file.csv>",
		Short: "Create the batch state file for a transfer CSV",
		Long: `Parses a CSV of wallet,amount rows and persists one pending transfer record
per row. The state file is the single durable source of truth for the batch:
run and confirm only act on it, and re-running init never overwrites it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			entries, err := batch.ReadCSV(args[0])
			if err != nil {
				return err
			}
			b, err := batch.Load(entries, w.env.TokenDecimals)
			if err != nil {
				return err
			}

			id := w.identity(args[0])
			persisted, err := w.store.Initialize(id, b)
			if err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					existing, loadErr := w.store.Load(id)
					if loadErr != nil {
						return loadErr
					}
					counts := existing.CountByState()
					cmd.Printf("Batch %s already initialized (%d records, %d confirmed)\n",
						id, len(existing.Records), counts[batch.StateConfirmed])
					return nil
				}
				return err
			}

			cmd.Printf("Batch %s initialized: %d records, %s total to transfer\n",
				id, len(persisted.Records), formatAmount(persisted.Total()))
			return nil
		},
	}
}

// formatAmount renders a token amount with thousands separators.
func formatAmount(amount fmt.Stringer) string {
	return amountPrinter(amount.String())
}
