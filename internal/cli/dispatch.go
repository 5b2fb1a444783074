package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch cycle: claim the next ready item, run the worker, apply the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			res, err := orch.DispatchNext(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res == nil {
				_, _ = fmt.Fprintln(out, "dispatched=false")
				_, _ = fmt.Fprintln(out, "Nothing ready to dispatch")
				return nil
			}
			_, _ = fmt.Fprintf(out, "dispatched=true spec_id=%s class=%s duration=%s\n",
				res.SpecID, res.Class, res.Duration)
			_, _ = fmt.Fprintf(out, "Dispatched %s: %s (%s)\n", res.SpecID, res.Class, res.Message)
			return nil
		},
	}
	return cmd
}
