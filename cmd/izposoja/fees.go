package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

func newFeesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Manage the fee ledger",
	}
	cmd.AddCommand(newFeesSetCommand(opts))
	return cmd
}

func newFeesSetCommand(opts *rootOptions) *cobra.Command {
	var acct model.FeeAccount

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Record a borrower's fee account for a period",
		Long: `Record what a borrower owes and has paid for a fee period. Existing
records for the same borrower and period are replaced.

Example:
  izposoja fees set --borrower 7 --period 2026-fall --due 120 --paid 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if acct.BorrowerID <= 0 {
				return fmt.Errorf("--borrower is required")
			}
			if acct.Period == "" {
				return fmt.Errorf("--period is required")
			}

			database, err := openDatabase(opts.cfg.DB)
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := store.GetUser(cmd.Context(), database, acct.BorrowerID)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("borrower %d not found", acct.BorrowerID)
			}

			if err := store.SetFeeAccount(cmd.Context(), database, acct); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Fee account for %s (%s): due %.2f, paid %.2f, unpaid fines %.2f\n",
				user.Username, acct.Period, acct.AmountDue, acct.AmountPaid, acct.UnpaidFines)
			return nil
		},
	}

	cmd.Flags().Int64Var(&acct.BorrowerID, "borrower", 0, "borrower user ID (required)")
	cmd.Flags().StringVar(&acct.Period, "period", "", "fee period, e.g. 2026-fall (required)")
	cmd.Flags().Float64Var(&acct.AmountDue, "due", 0, "amount due for the period")
	cmd.Flags().Float64Var(&acct.AmountPaid, "paid", 0, "amount paid for the period")
	cmd.Flags().Float64Var(&acct.UnpaidFines, "fines", 0, "unpaid overdue fines")
	return cmd
}
