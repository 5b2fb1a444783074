package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPopulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Create tracker entries for queued items that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			sum, err := orch.Populate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "created=%d linked=%d\n", sum.Created, sum.Linked)
			_, _ = fmt.Fprintf(out, "Populate done: %d issues created, %d existing issues linked\n",
				sum.Created, sum.Linked)
			return nil
		},
	}
	return cmd
}
