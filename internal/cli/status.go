package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage and tool status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	count, err := rt.service.Transactions().Count(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n", rt.cfg.Storage.DBPath)
	fmt.Fprintf(out, "Transactions: %d\n", count)
	fmt.Fprintf(out, "Provider: %s (%s)\n", rt.cfg.LLM.Provider, rt.cfg.LLM.Model)
	fmt.Fprintf(out, "Tools: %v\n", rt.service.Tools())
	fmt.Fprintf(out, "Runs per question: %d, steps per run: %d\n", rt.cfg.Agent.Runs, rt.cfg.Agent.MaxSteps)
	return nil
}
