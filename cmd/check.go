package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/pkg/discrepancy"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report discrepancies between the chain and the mirror without repairing them",
	Long: `Report discrepancies between the chain and the mirror without repairing them.

Each call sweeps at most reconciler.account-limit program accounts, resuming where the
previous sweep stopped, so missing_in_db results cover one page of the population per run.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

		deps, err := buildDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := context.Background()
		span := deps.syncLogger.Start("check_discrepancies")
		report, err := deps.reconciler.CheckDiscrepancies(ctx)
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			return printFailure(err)
		}
		span.Finish(ctx, map[string]int{
			"found":        len(report.Discrepancies),
			"totalChecked": report.TotalChecked,
		}, 0, nil)

		csvPath, _ := cmd.Flags().GetString("csv")
		if csvPath != "" {
			if err := writeReportCSV(report, csvPath); err != nil {
				return printFailure(err)
			}
		}
		return printResult(true, fmt.Sprintf("Found %d discrepancies", len(report.Discrepancies)), report)
	},
}

func writeReportCSV(report *discrepancy.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file '%s': %w", path, err)
	}
	defer f.Close()
	return report.WriteCSV(f)
}

func init() {
	checkCmd.Flags().String("csv", "", "Also write the discrepancies to this CSV file")
}
