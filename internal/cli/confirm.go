package cli

import (
	"github.com/spf13/cobra"
)

// NewConfirmCmd creates the confirm command: it polls the ledger for every
// submitted record and marks finalized transfers confirmed. Idempotent;
// confirming an already confirmed batch is a no-op.
func NewConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <file.csv>",
		Short: "Confirm submitted transfers against the ledger",
		Long: `Polls the signature status of every submitted record. Finalized transfers
become confirmed; dropped transactions become failed and are resubmitted by
the next run. Records whose confirmation window elapses stay submitted so a
later confirm can resume the wait.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWorkflow(cmd)
			if err != nil {
				return err
			}
			client, err := w.ledgerClient()
			if err != nil {
				return err
			}

			id := w.identity(args[0])
			report, err := w.newExecutor(client).Confirm(cmd.Context(), id)
			if err != nil {
				return err
			}

			renderReport(cmd.OutOrStdout(), id.String(), report)
			if !report.Success() {
				return ErrRecordsFailed
			}
			return nil
		},
	}
}
