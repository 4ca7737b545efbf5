package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/kvstore"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Dump the diagnostics key-value store",
	Long: `Print every key in the key-value store: the installed version and
snapshots of the last toggle, reconciliation and migration.
Reads the store directly, so the daemon does not have to be running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kv, err := kvstore.Open(kvstore.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.KVPath(),
			BusyTimeout: cfg.BusyTimeout(),
		}, nil)
		if err != nil {
			return err
		}
		defer kv.Close()

		entries, err := kv.All(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Key-value store is empty")
			return nil
		}
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{e.Key, e.Value, e.UpdatedAt.Format(time.RFC3339)})
		}
		renderTable(out, []string{"Key", "Value", "Updated"}, rows)
		return nil
	},
}
