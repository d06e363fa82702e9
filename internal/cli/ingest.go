package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv>...",
	Short: "Load CSV statements",
	Long: `Load one or more CSV statements. Columns are matched by header:
name, amount, created_at, transfer_note and transaction_type. Every row is
classified, stored and indexed for search.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	out := cmd.OutOrStdout()
	for _, path := range args {
		report, err := rt.service.Ingest(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Fprintf(out, "%s: %d rows, %d stored, %d skipped, %d unclassified (batch %s)\n",
			path, report.Rows, report.Stored, report.Skipped, report.Unclassified, report.Batch)
		for _, s := range report.SkippedRows {
			fmt.Fprintf(out, "  line %d: %s\n", s.Line, s.Reason)
		}
	}
	return nil
}
