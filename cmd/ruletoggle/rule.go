package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/recurrence"
	"github.com/aatumaykin/ruletoggle/internal/rules"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage scheduled rules on a running daemon",
}

func init() {
	ruleCmd.AddCommand(ruleAddCmd(), ruleListCmd(), ruleRemoveCmd())
}

func ruleAddCmd() *cobra.Command {
	var req rules.AddRequest
	var bodyFile string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule that is enabled for a duration at every occurrence of a cron expression",
		Example: `  ruletoggle rule add --name weekly-thread --recurrence "0 0 * * 3" \
    --duration "1 day" --body-file rule.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("failed to read body file: %w", err)
				}
				req.Body = strings.TrimRight(string(data), "\n")
			}

			var res rules.AddResult
			err := newClient(baseURL()).do(cmd.Context(), http.MethodPost, "/rules", req, &res)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Rule %s added\n", res.Name)
			fmt.Fprintf(out, "Schedule: %s (%s)\n", res.Recurrence, recurrence.VisualizerURL(res.Recurrence))
			fmt.Fprintf(out, "Duration: %s\n", time.Duration(res.DurationSeconds)*time.Second)
			if res.EnabledNow {
				fmt.Fprintf(out, "Enabled now, disables at %s\n", res.DisableAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Next enable: %s\n", res.NextEnable.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "rule name")
	cmd.Flags().StringVar(&req.Recurrence, "recurrence", "", "cron expression")
	cmd.Flags().StringVar(&req.Duration, "duration", "", `how long each window stays open, e.g. "2 hours"`)
	cmd.Flags().StringVar(&req.Body, "body", "", "rule body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the rule body from a file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("recurrence")
	_ = cmd.MarkFlagRequired("duration")
	cmd.MarkFlagsOneRequired("body", "body-file")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func ruleListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List managed rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []rules.RuleInfo
			if err := newClient(baseURL()).do(cmd.Context(), http.MethodGet, "/rules", nil, &list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No managed rules")
				return nil
			}

			rows := make([][]any, 0, len(list))
			for _, r := range list {
				rows = append(rows, []any{
					r.Name,
					r.State,
					r.Recurrence,
					formatSeconds(r.DurationSeconds),
					formatTime(r.NextEnable),
					formatTime(r.PendingDisable),
					yesNo(r.InDocument),
					yesNo(r.Scheduled),
				})
			}
			renderTable(out, []string{"Name", "State", "Recurrence", "Duration", "Next enable", "Disables at", "In document", "Scheduled"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func ruleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove rules from the document and cancel their schedules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(baseURL())
			var res rules.RemoveResult
			var err error
			if len(args) == 1 {
				err = c.do(cmd.Context(), http.MethodDelete, "/rules/"+url.PathEscape(args[0]), nil, &res)
			} else {
				err = c.do(cmd.Context(), http.MethodDelete, "/rules", map[string][]string{"names": args}, &res)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range res.Removed {
				fmt.Fprintf(out, "✅ Rule %s removed\n", name)
			}
			for _, name := range res.Missing {
				fmt.Fprintf(out, "⚠️ Rule %s was not in the document\n", name)
			}
			fmt.Fprintf(out, "Cancelled jobs: %d\n", len(res.CancelledJobs))
			return nil
		},
	}
}

func formatSeconds(s int64) string {
	if s == 0 {
		return "-"
	}
	return (time.Duration(s) * time.Second).String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
