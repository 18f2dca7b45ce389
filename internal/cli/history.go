package cli

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/iokuper/bmcqa/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs, or the failures of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.Report.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		if len(args) == 1 {
			failures, err := store.FailuresFor(ctx, args[0])
			if err != nil {
				return err
			}
			if len(failures) == 0 {
				fmt.Fprintln(out, "no failures recorded for this run")
				return nil
			}
			table := tablewriter.NewTable(out)
			table.Header("Tester", "Check", "Message", "Error")
			for _, f := range failures {
				table.Append(f.Tester, f.Name, f.Message, f.ErrorDetail)
			}
			table.Render()
			return nil
		}

		runs, err := store.RecentRuns(ctx, cfg.Network.Host, historyLimit)
		if err != nil {
			return err
		}
		table := tablewriter.NewTable(out)
		table.Header("Run", "Host", "Started", "Duration", "Passed", "Failed")
		for _, r := range runs {
			table.Append(r.ID, r.Host, r.StartedAt.Format(time.RFC3339),
				r.Duration.Round(time.Second).String(),
				fmt.Sprint(r.Passed), fmt.Sprint(r.Failed))
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
