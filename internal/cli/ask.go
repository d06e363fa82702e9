package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/finagent/pkg/session"
)

var (
	askRuns         int
	askSteps        int
	askConversation string
	askJSON         bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your transactions",
	Long: `Ask a question about your transactions. The agent searches the
ingested transactions and uses a calculator for arithmetic. Several
independent runs vote on the final answer.

Use --conversation to continue an earlier exchange with the same key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askRuns, "runs", 0, "number of voting runs (default from config)")
	askCmd.Flags().IntVar(&askSteps, "steps", 0, "model steps per run (default from config)")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "conversation key to resume and record")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full vote as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	var transcripts *session.TranscriptStore
	var history []session.Message
	if askConversation != "" {
		transcripts, err = session.NewTranscriptStore(filepath.Join(rt.cfg.DataDir, "conversations"), rt.log.Zerolog())
		if err != nil {
			return err
		}
		history, err = transcripts.Load(ctx, askConversation)
		if err != nil {
			return err
		}
	}

	userMsg := session.User(question)
	history = append(history, userMsg)

	runs := askRuns
	if runs <= 0 {
		runs = rt.cfg.Agent.Runs
	}
	steps := askSteps
	if steps <= 0 {
		steps = rt.cfg.Agent.MaxSteps
	}

	answer, err := rt.service.RunAgentWith(ctx, history, runs, steps)
	if err != nil {
		return err
	}

	if transcripts != nil {
		record := []session.Message{userMsg}
		if answer.Answered {
			record = append(record, session.Assistant(answer.Text))
		}
		if err := transcripts.Append(ctx, askConversation, record...); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	if !answer.Answered {
		fmt.Fprintln(out, "No confident answer.")
		return nil
	}
	fmt.Fprintln(out, answer.Text)
	fmt.Fprintf(out, "(%d of %d runs agreed)\n", answer.Outcome.Votes, len(answer.Outcome.Runs))
	return nil
}
