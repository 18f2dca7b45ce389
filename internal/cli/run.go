package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/internal/history"
	"github.com/iokuper/bmcqa/internal/report"
)

var (
	iterations int
	noHistory  bool
)

var runCmd = &cobra.Command{
	Use:   "run [tester|category]...",
	Short: "Run testers against the configured BMC",
	Long: `Run the named testers, categories, or "all". With no arguments an
interactive menu is shown when stdin is a terminal.

Examples:
  bmcqa run network dns
  bmcqa run network --iterations 3
  bmcqa run all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			selected, iters, err := menuSelect(cmd, iterations)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return nil
			}
			args = selected
			iterations = iters
		}

		entries, err := harness.Resolve(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h := harness.New(cfg)
		if err := h.Preflight(ctx); err != nil {
			return err
		}

		summary, runErr := h.Run(ctx, entries, iterations)

		report.PrintSummary(cmd.OutOrStdout(), summary)

		if w, werr := report.NewWriter(cfg.Report.Dir); werr != nil {
			log.Error().Err(werr).Msg("Reports not written")
		} else if _, _, werr := w.Write(summary); werr != nil {
			log.Error().Err(werr).Msg("Reports not written")
		}

		if !noHistory {
			if store, herr := history.Open(cfg.Report.HistoryDB); herr != nil {
				log.Error().Err(herr).Msg("History not recorded")
			} else {
				defer store.Close()
				if herr := store.SaveSummary(ctx, summary); herr != nil {
					log.Error().Err(herr).Msg("History not recorded")
				}
			}
		}

		if runErr != nil {
			return runErr
		}
		if !summary.Ok() {
			return fmt.Errorf("%d checks failed", summary.Failed())
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "repeat the selected testers 1-10 times")
	runCmd.Flags().BoolVar(&noHistory, "no-history", false, "skip recording the run in the history database")
	rootCmd.AddCommand(runCmd)
}
