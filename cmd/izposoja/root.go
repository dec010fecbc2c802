package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/izposoja/internal/config"
)

// rootOptions holds the persistent flags and the loaded configuration.
type rootOptions struct {
	ConfigPath string
	DB         string
	Log        string
	Verbose    bool

	cfg      config.Config
	closeLog func()
}

func newRootCommand() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "izposoja",
		Short:         "Library circulation engine",
		Long:          "Lends library titles: borrow requests, pickups, returns, renewals and fines.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DB = opts.DB
			}
			if cmd.Flags().Changed("log") {
				cfg.Log = opts.Log
			}
			opts.cfg = cfg

			closeLog, err := setupLogger(cfg.Log, opts.Verbose)
			if err != nil {
				return fmt.Errorf("setting up logging: %w", err)
			}
			opts.closeLog = closeLog
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (default: built-in policy)")
	cmd.PersistentFlags().StringVarP(&opts.DB, "db", "d", "izposoja.sqlite3", "SQLite database path")
	cmd.PersistentFlags().StringVarP(&opts.Log, "log", "l", "", "log file path (default: stdout/stderr only)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug messages")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newRemindCommand(opts))
	cmd.AddCommand(newFeesCommand(opts))
	cmd.AddCommand(newAssignCommand(opts))

	return cmd, opts
}

// close releases the log file. Cobra skips post-run hooks when a command
// fails, so main calls this after Execute returns.
func (o *rootOptions) close() {
	if o.closeLog != nil {
		o.closeLog()
		o.closeLog = nil
	}
}
