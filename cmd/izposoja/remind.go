package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemindCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send due-soon and overdue reminders once",
		Long: `Send reminders for borrowed loans that are overdue or due within the
configured lead time. Meant to be run from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDatabase(opts.cfg.DB)
			if err != nil {
				return err
			}
			defer database.Close()

			res, err := newService(database, opts.cfg).SendReminders(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reminders sent: %d, failed: %d\n", res.Sent, res.Failed)
			return nil
		},
	}
}
