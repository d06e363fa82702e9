package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/finagent/pkg/ingest"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest CSV files dropped into an inbox directory",
	Long: `Watch an inbox directory and ingest every CSV file written to it.
Ingested files move to processed/, files that fail move to failed/.
The directory defaults to ingest.inbox_dir. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	dir := rt.cfg.Ingest.InboxDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no inbox directory configured")
	}

	out := cmd.OutOrStdout()
	watcher, err := ingest.NewWatcher(dir, rt.service.Pipeline(), rt.log.Component("watch"),
		ingest.WithReportHandler(func(path string, report ingest.Report, err error) {
			if err != nil {
				fmt.Fprintf(out, "%s: failed: %v\n", path, err)
				return
			}
			fmt.Fprintf(out, "%s: %d stored, %d skipped\n", path, report.Stored, report.Skipped)
		}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Watching %s\n", dir)
	return watcher.Run(ctx)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
