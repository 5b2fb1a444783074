package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func newStatusCmd() *cobra.Command {
	var showHistory bool
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue buckets, metrics, and optionally the attempt history",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			q := newQueueManager(home, cfg)
			snap, err := q.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "pending=%d active=%d completed=%d failed=%d processed=%d succeeded=%d infra_retries=%d manual=%d\n",
				len(snap.Pending), len(snap.Active), len(snap.Completed), len(snap.Failed),
				snap.Metrics.TotalProcessed, snap.Metrics.TotalSucceeded,
				snap.Metrics.InfraRetries, snap.Metrics.ManualInterventions)

			printBucket(cmd, "Pending", snap.Pending)
			printBucket(cmd, "Active", snap.Active)
			printBucket(cmd, "Completed", snap.Completed)
			printBucket(cmd, "Failed", snap.Failed)

			if !showHistory {
				return nil
			}
			st, err := newHistory(home, cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer func() { _ = st.Close() }()
			attempts, err := st.RecentAttempts(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\nRecent attempts (%d):\n", len(attempts))
			for _, a := range attempts {
				_, _ = fmt.Fprintf(out, "  %s attempt=%d class=%s duration=%s %s\n",
					a.SpecID, a.Attempt, a.Class, a.Duration, a.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHistory, "history", false, "Show recent attempts from the history store")
	cmd.Flags().IntVar(&historyLimit, "history-limit", 20, "Number of recent attempts to show")
	return cmd
}

func printBucket(cmd *cobra.Command, name string, items []*models.WorkItem) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "\n%s (%d):\n", name, len(items))
	for _, it := range items {
		line := fmt.Sprintf("  %s priority=%d attempts=%d", it.SpecID, it.Priority, it.Attempts)
		if it.IssueNumber != nil {
			line += fmt.Sprintf(" issue=#%d", *it.IssueNumber)
		}
		if it.FailureReason != "" {
			line += " reason=" + it.FailureReason
		}
		_, _ = fmt.Fprintln(out, line)
	}
}
