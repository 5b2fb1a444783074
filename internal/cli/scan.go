package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the corpus for failing specs and enqueue new work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.CorpusRoot == "" {
				return fmt.Errorf("corpus_root not set in config.yaml")
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			sum, err := orch.ScanAndEnqueue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "files=%d found=%d skipped=%d unreadable=%d enqueued=%d\n",
				sum.Files, sum.Found, sum.Skipped, sum.Unreadable, sum.Enqueued)
			_, _ = fmt.Fprintf(out, "Scanned %d files: %d specs found, %d newly enqueued (%d disabled, %d unreadable)\n",
				sum.Files, sum.Found, sum.Enqueued, sum.Skipped, sum.Unreadable)
			return nil
		},
	}
	return cmd
}
