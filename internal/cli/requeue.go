package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRequeueCmd() *cobra.Command {
	var specID string

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Reset a failed item back to pending with a fresh retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			if specID == "" {
				return fmt.Errorf("--id is required")
			}
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			if err := orch.Requeue(cmd.Context(), specID); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "requeued=true spec_id=%s\n", specID)
			_, _ = fmt.Fprintf(out, "Requeued %s\n", specID)
			return nil
		},
	}
	cmd.Flags().StringVar(&specID, "id", "", "Spec id of the failed item")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
