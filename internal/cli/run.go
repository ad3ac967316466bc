package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/executor"
)

// ErrRecordsFailed signals that the invocation completed but left at least
// one record failed; the process should exit nonzero so the operator knows
// another run is needed.
var ErrRecordsFailed = errors.New("one or more transfers need another run")

// NewRunCmd creates the run command: it attempts forward progress for every
// record in the batch that is not yet confirmed. Safe to re-run any number of
// times; confirmed records are never resubmitted.
func NewRunCmd() *cobra.Command {
	var (
		dryRun      bool
		skipConfirm bool
	)

	cmd := &cobra.Command{
		Use:   "run <file.csv>",
		Short: "Submit and confirm all outstanding transfers in a batch",
		Long: `Submits every pending or failed record and confirms every submitted one,
persisting each transition before moving on. Interrupting a run is safe:
progress is resumed from the state file on the next invocation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWorkflow(cmd)
			if err != nil {
				return err
			}
			id := w.identity(args[0])

			if dryRun {
				// Dry-run is a pure read; no ledger client is constructed.
				exec := w.newExecutor(nil)
				rows, planErr := exec.DryRun(id)
				if planErr != nil {
					return planErr
				}
				renderPlan(cmd.OutOrStdout(), rows)
				return nil
			}

			client, err := w.ledgerClient()
			if err != nil {
				return err
			}
			exec := w.newExecutor(client)

			report, err := exec.Run(cmd.Context(), id, executor.Options{SkipConfirm: skipConfirm})
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

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be submitted without touching the ledger")
	cmd.Flags().BoolVar(&skipConfirm, "skip-confirm", false,
		"do not wait for confirmations; run 'confirm' later to resolve submitted records")

	return cmd
}
