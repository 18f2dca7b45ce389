package cli

import (
	"github.com/spf13/cobra"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/internal/report"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available testers",
	RunE: func(cmd *cobra.Command, args []string) error {
		report.PrintTesterList(cmd.OutOrStdout(), harness.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
