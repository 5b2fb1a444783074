package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the item the next dispatch would pick, without claiming it",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			q := newQueueManager(home, cfg)
			item, err := q.NextReady()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if item == nil {
				_, _ = fmt.Fprintln(out, "ready=false")
				_, _ = fmt.Fprintln(out, "Nothing ready: queue empty or all files busy")
				return nil
			}
			_, _ = fmt.Fprintf(out, "ready=true spec_id=%s priority=%d attempts=%d file=%s\n",
				item.SpecID, item.Priority, item.Attempts, item.FilePath)
			_, _ = fmt.Fprintf(out, "Next up: %s (priority %d) %s\n",
				item.SpecID, item.Priority, item.Description)
			return nil
		},
	}
	return cmd
}
