package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/app"
	"github.com/aatumaykin/ruletoggle/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite rule blocks to the current format without starting the daemon",
	Long: `Run the upgrade step once: rule blocks written by the installed release
are rewritten with the current header format and the installed version is
recorded. Do not run while the daemon is serving the same document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return fmt.Errorf("invalid configuration: %v", errs[0])
		}

		log, err := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
		if err != nil {
			return err
		}

		res, err := app.New(cfg, log).Migrate(cmd.Context())
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		return err
	},
}
