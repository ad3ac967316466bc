package cli

import (
	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/executor"
)

// NewStatusCmd creates the status command: a read-only projection of the
// batch state file.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <file.csv>",
		Short: "Show per-record transfer status for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			id := w.identity(args[0])
			records, err := w.store.Snapshot(id)
			if err != nil {
				return err
			}

			renderReport(cmd.OutOrStdout(), id.String(), executor.NewReport(records))
			return nil
		},
	}
}
