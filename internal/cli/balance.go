package cli

import (
	"github.com/spf13/cobra"
)

// NewBalanceCmd creates the balance command: it reports the configured
// token's balance for the sender wallet, or for an explicit address.
func NewBalanceCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the sender wallet's token balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := newWorkflow(cmd)
			if err != nil {
				return err
			}
			client, err := w.ledgerClient()
			if err != nil {
				return err
			}

			balance, err := client.GetBalance(cmd.Context(), address)
			if err != nil {
				return err
			}

			cmd.Printf("%s\n", formatAmount(balance))
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "query this wallet address instead of the sender")
	return cmd
}
