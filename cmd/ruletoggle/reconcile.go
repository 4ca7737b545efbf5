package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/rules"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Cancel schedules of rules deleted from the document by hand",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res rules.ReconcileResult
		if err := newClient(baseURL()).do(cmd.Context(), http.MethodPost, "/reconcile", nil, &res); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(res.Rules) == 0 {
			fmt.Fprintln(out, "Nothing to reconcile")
			return nil
		}
		for _, name := range res.Rules {
			fmt.Fprintf(out, "Rule %s is gone from the document, schedule cancelled\n", name)
		}
		fmt.Fprintf(out, "Cancelled jobs: %d\n", len(res.CancelledJobs))
		return nil
	},
}
