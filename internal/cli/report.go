package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func newReportCmd() *cobra.Command {
	var (
		specID  string
		class   string
		message string
		detail  string
		pr      int
		branch  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Ingest a terminal outcome for an active item from an out-of-band worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if specID == "" || class == "" {
				return fmt.Errorf("--id and --class are required")
			}
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			rep := models.WorkerReport{
				SpecID:  specID,
				Class:   class,
				Message: message,
				Detail:  detail,
			}
			if pr > 0 {
				rep.PRNumber = &pr
			}
			if branch != "" {
				rep.Branch = &branch
			}
			if err := orch.Report(cmd.Context(), rep); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "reported=true spec_id=%s class=%s\n", specID, models.ParseFailureClass(class))
			_, _ = fmt.Fprintf(out, "Recorded %s outcome for %s\n", models.ParseFailureClass(class), specID)
			return nil
		},
	}
	cmd.Flags().StringVar(&specID, "id", "", "Spec id of the active item")
	cmd.Flags().StringVar(&class, "class", "", "Outcome class: success, spec-failure, regression, infrastructure, quality-failure")
	cmd.Flags().StringVar(&message, "message", "", "Short outcome summary")
	cmd.Flags().StringVar(&detail, "detail", "", "Longer diagnostic detail")
	cmd.Flags().IntVar(&pr, "pr", 0, "Pull request number the worker opened")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch the worker pushed")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}
