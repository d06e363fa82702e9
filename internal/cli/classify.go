package cli

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
)

var (
	classifyName string
	classifyTime string
	classifyNote string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a single transaction",
	Example: `  finagent classify --name "Highlands Coffee" --time "03/12/2025 08:15" --note "latte"`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyName, "name", "", "transaction name")
	classifyCmd.Flags().StringVar(&classifyTime, "time", "", "transaction time (default now)")
	classifyCmd.Flags().StringVar(&classifyNote, "note", "", "transfer note")
	_ = classifyCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	createdAt := time.Now()
	if classifyTime != "" {
		t, err := dateparse.ParseLocal(classifyTime)
		if err != nil {
			return fmt.Errorf("invalid --time: %w", err)
		}
		createdAt = t
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	category, subcategory := rt.service.ClassifyTransaction(cmd.Context(), classifyName, createdAt, classifyNote)

	out := cmd.OutOrStdout()
	if category == "" {
		fmt.Fprintln(out, "unclassified")
		return nil
	}
	fmt.Fprintf(out, "%s / %s\n", category, subcategory)
	return nil
}
